package permission

import (
	"context"
	"fmt"

	"ollmchat/config"
)

// Authority decides whether a tool may perform a side effect.
//
// Lookup order is session store, global store, then the Asker. The first
// definitive Yes or No wins. Answers from the Asker are stored according to
// their scope.
type Authority struct {
	store   *Store
	asker   Asker
	baseDir string
}

func NewAuthority(store *Store, asker Asker, baseDir string) *Authority {
	if store == nil {
		store = NewStore("")
	}
	if asker == nil {
		asker = DenyAsker{}
	}
	return &Authority{store: store, asker: asker, baseDir: baseDir}
}

func (a *Authority) Store() *Store {
	return a.store
}

func (a *Authority) BaseDir() string {
	return a.baseDir
}

// SetAsker swaps the strategy used when the stores cannot decide.
func (a *Authority) SetAsker(asker Asker) {
	if asker == nil {
		asker = DenyAsker{}
	}
	a.asker = asker
}

// Normalize maps a target to its store key.
func (a *Authority) Normalize(target string) string {
	return NormalizePath(a.baseDir, target)
}

// Lookup returns the stored answer for req without asking.
func (a *Authority) Lookup(req Request) Result {
	path := a.Normalize(req.TargetPath)
	if r := Check(a.store.Session(path), req.Operation); r != Ask {
		return r
	}
	return Check(a.store.Global(path), req.Operation)
}

// Request reports whether req is allowed. An error from the Asker denies
// the request and is returned alongside.
func (a *Authority) Request(ctx context.Context, req Request) (bool, error) {
	path := a.Normalize(req.TargetPath)
	req.TargetPath = path

	if r := Check(a.store.Session(path), req.Operation); r != Ask {
		a.log("session", req, r)
		return r == Yes, nil
	}
	if r := Check(a.store.Global(path), req.Operation); r != Ask {
		a.log("global", req, r)
		return r == Yes, nil
	}

	decision, err := a.asker.Ask(ctx, req)
	if err != nil {
		return false, fmt.Errorf("failed to ask for permission: %w", err)
	}

	scope := decision.Scope
	if scope == Always && !a.store.Persistent() {
		scope = Session
	}

	switch scope {
	case Session:
		a.store.SetSession(path, req.Operation, decision.Allow)
	case Always:
		if _, err := a.store.SetGlobal(path, req.Operation, decision.Allow); err != nil {
			// The decision still holds for this process.
			a.store.SetSession(path, req.Operation, decision.Allow)
			if config.DebugLog != nil {
				config.DebugLog.Printf("[permission] %v", err)
			}
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[permission] asked: %s %s %s -> allow=%v scope=%s",
			req.ToolName, req.Operation, path, decision.Allow, scope)
	}
	return decision.Allow, nil
}

func (a *Authority) log(source string, req Request, r Result) {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[permission] %s: %s %s %s -> %s", source, req.ToolName, req.Operation, req.TargetPath, r)
	}
}
