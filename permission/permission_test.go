package permission

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ollmchat/config"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		record string
		op     Operation
		want   Result
	}{
		{"???", Read, Ask},
		{"???", Read | Write | Execute, Ask},
		{"rwx", Read, Yes},
		{"rwx", Read | Write | Execute, Yes},
		{"r--", Read, Yes},
		{"r--", Write, No},
		{"r--", Read | Write, No},
		{"---", Execute, No},
		{"r?-", Write, Ask},
		{"r?-", Read | Write, Ask},
		{"-?x", Read | Write, No},
		{"??-", Read | Execute, No},
		{"r?x", Read | Execute, Yes},
		{"zzz", Read, No},
		{"w--", Read, No},
		{"", Read, Ask},
		{"rw", Read, Ask},
		{"rwxr", Read, Ask},
	}

	for _, tt := range tests {
		t.Run(tt.record+"/"+tt.op.String(), func(t *testing.T) {
			if got := Check(tt.record, tt.op); got != tt.want {
				t.Errorf("Check(%q, %s) = %s, want %s", tt.record, tt.op, got, tt.want)
			}
		})
	}
}

func TestUpdateStringRoundTrip(t *testing.T) {
	records := []string{"???", "rwx", "r--", "---", "-?x", "bad"}
	ops := []Operation{Read, Write, Execute, Read | Execute, Read | Write | Execute}

	for _, r := range records {
		for _, op := range ops {
			granted := UpdateString(r, op, true)
			if len(granted) != 3 {
				t.Fatalf("UpdateString(%q, %s, true) = %q", r, op, granted)
			}
			if got := Check(granted, op); got != Yes {
				t.Errorf("grant %s on %q -> %q checks %s", op, r, granted, got)
			}

			denied := UpdateString(r, op, false)
			if got := Check(denied, op); got != No {
				t.Errorf("deny %s on %q -> %q checks %s", op, r, denied, got)
			}
		}
	}
}

func TestWriteImpliesRead(t *testing.T) {
	for _, r := range []string{"???", "---", "-?x"} {
		got := UpdateString(r, Write, true)
		if Check(got, Read) != Yes {
			t.Errorf("UpdateString(%q, Write, true) = %q, read not granted", r, got)
		}
	}
	if got := UpdateString("r--", Write, false); got != "r--" {
		t.Errorf("denying write changed read: %q", got)
	}
}

func TestOperationString(t *testing.T) {
	if got := (Read | Execute).String(); got != "r-x" {
		t.Errorf("String() = %q", got)
	}
	if got := ParseOperations("XR"); got != Read|Execute {
		t.Errorf("ParseOperations = %s", got)
	}
	if got := (Read | Write).Verb(); got != "read/write" {
		t.Errorf("Verb() = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	real := filepath.Join(dir, "real.txt")
	os.WriteFile(real, []byte("x"), 0600)
	os.Symlink(real, filepath.Join(dir, "link1"))
	os.Symlink("link1", filepath.Join(dir, "link2"))
	os.Mkdir(filepath.Join(dir, "sub"), 0700)
	os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "sublink"))
	os.Symlink(filepath.Join(dir, "loopB"), filepath.Join(dir, "loopA"))
	os.Symlink(filepath.Join(dir, "loopA"), filepath.Join(dir, "loopB"))
	os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "dangling"))

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"relative", "real.txt", real},
		{"dot segments", "sub/../real.txt", real},
		{"symlink", "link1", real},
		{"chained relative symlink", "link2", real},
		{"directory symlink", "sublink/new.txt", filepath.Join(dir, "sub", "new.txt")},
		{"missing file", "nope/x.txt", filepath.Join(dir, "nope", "x.txt")},
		{"cycle", "loopA", filepath.Join(dir, "loopA")},
		{"dangling", "dangling", filepath.Join(dir, "missing")},
		{"url", "https://example.com/a", "https://example.com/a"},
		{"mcp target", "mcp://fs/read", "mcp://fs/read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePath(dir, tt.in)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizePath(dir, got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestStorePersistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "permissions.json")
	s := NewStore(file)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() of missing file = %v", err)
	}

	if _, err := s.SetGlobal("/a", Write, true); err != nil {
		t.Fatalf("SetGlobal() error = %v", err)
	}
	if _, err := s.SetGlobal("/b", Execute, false); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]string
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("file is not a flat JSON object: %v", err)
	}
	if onDisk["/a"] != "rw?" || onDisk["/b"] != "??-" {
		t.Errorf("file contents = %v", onDisk)
	}

	info, _ := os.Stat(file)
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v", info.Mode().Perm())
	}

	reloaded := NewStore(file)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	if reloaded.Global("/a") != "rw?" || reloaded.Global("/missing") != Unknown {
		t.Errorf("reloaded = %v", reloaded.Grants())
	}
}

func TestStoreMalformedRecords(t *testing.T) {
	file := filepath.Join(t.TempDir(), "permissions.json")
	os.WriteFile(file, []byte(`{"/a":"rwxrwx","/b":"r-"}`), 0600)

	s := NewStore(file)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if s.Global("/a") != Unknown || s.Global("/b") != Unknown {
		t.Errorf("malformed records should read as %q", Unknown)
	}
}

func TestStoreWithoutFile(t *testing.T) {
	s := NewStore("")
	if s.Persistent() {
		t.Error("store without file must not be persistent")
	}
	if _, err := s.SetGlobal("/a", Read, true); err == nil {
		t.Error("SetGlobal without a file should fail")
	}
}

type recordingAsker struct {
	decision Decision
	err      error
	calls    []Request
}

func (r *recordingAsker) Ask(_ context.Context, req Request) (Decision, error) {
	r.calls = append(r.calls, req)
	return r.decision, r.err
}

func TestAuthorityRequest(t *testing.T) {
	tests := []struct {
		name      string
		file      bool
		decision  Decision
		wantAllow bool
		validate  func(t *testing.T, a *Authority, asker *recordingAsker)
	}{
		{
			name:      "once is not remembered",
			decision:  Decision{Allow: true, Scope: Once},
			wantAllow: true,
			validate: func(t *testing.T, a *Authority, asker *recordingAsker) {
				a.Request(context.Background(), Request{TargetPath: "f.txt", Operation: Read})
				if len(asker.calls) != 2 {
					t.Errorf("asked %d times, want 2", len(asker.calls))
				}
			},
		},
		{
			name:      "session is remembered in memory",
			decision:  Decision{Allow: true, Scope: Session},
			wantAllow: true,
			validate: func(t *testing.T, a *Authority, asker *recordingAsker) {
				ok, _ := a.Request(context.Background(), Request{TargetPath: "f.txt", Operation: Read})
				if !ok || len(asker.calls) != 1 {
					t.Errorf("ok=%v asks=%d", ok, len(asker.calls))
				}
			},
		},
		{
			name:      "session deny is remembered",
			decision:  Decision{Allow: false, Scope: Session},
			wantAllow: false,
			validate: func(t *testing.T, a *Authority, asker *recordingAsker) {
				ok, _ := a.Request(context.Background(), Request{TargetPath: "f.txt", Operation: Read})
				if ok || len(asker.calls) != 1 {
					t.Errorf("ok=%v asks=%d", ok, len(asker.calls))
				}
			},
		},
		{
			name:      "always is written to the file",
			file:      true,
			decision:  Decision{Allow: true, Scope: Always},
			wantAllow: true,
			validate: func(t *testing.T, a *Authority, asker *recordingAsker) {
				key := a.Normalize("f.txt")
				if a.Store().Global(key) != "r??" {
					t.Errorf("global = %q", a.Store().Global(key))
				}
				if a.Store().Session(key) != Unknown {
					t.Error("always grant leaked into the session store")
				}
				fresh := NewStore(a.Store().File())
				fresh.Load()
				if fresh.Global(key) != "r??" {
					t.Error("grant not persisted")
				}
			},
		},
		{
			name:      "always without file becomes session",
			decision:  Decision{Allow: true, Scope: Always},
			wantAllow: true,
			validate: func(t *testing.T, a *Authority, asker *recordingAsker) {
				key := a.Normalize("f.txt")
				if a.Store().Session(key) != "r??" || a.Store().Global(key) != Unknown {
					t.Errorf("session=%q global=%q", a.Store().Session(key), a.Store().Global(key))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			file := ""
			if tt.file {
				file = filepath.Join(dir, "permissions.json")
			}
			asker := &recordingAsker{decision: tt.decision}
			a := NewAuthority(NewStore(file), asker, dir)

			ok, err := a.Request(context.Background(), Request{ToolName: "read_file", TargetPath: "f.txt", Operation: Read})
			if err != nil {
				t.Fatalf("Request() error = %v", err)
			}
			if ok != tt.wantAllow {
				t.Errorf("Request() = %v, want %v", ok, tt.wantAllow)
			}
			if len(asker.calls) != 1 || asker.calls[0].TargetPath != a.Normalize("f.txt") {
				t.Errorf("asker calls = %+v", asker.calls)
			}
			tt.validate(t, a, asker)
		})
	}
}

func TestAuthoritySessionBeforeGlobal(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "p.json"))
	a := NewAuthority(store, &recordingAsker{}, dir)
	key := a.Normalize("x")

	store.SetGlobal(key, Read, true)
	store.SetSession(key, Read, false)
	if ok, _ := a.Request(context.Background(), Request{TargetPath: "x", Operation: Read}); ok {
		t.Error("session deny must win over global grant")
	}
	if a.Lookup(Request{TargetPath: "x", Operation: Read}) != No {
		t.Error("Lookup should agree with Request")
	}
}

func TestAuthorityWriteGrantAllowsRead(t *testing.T) {
	dir := t.TempDir()
	asker := &recordingAsker{decision: Decision{Allow: true, Scope: Session}}
	a := NewAuthority(NewStore(""), asker, dir)

	a.Request(context.Background(), Request{TargetPath: "out.txt", Operation: Write})
	ok, _ := a.Request(context.Background(), Request{TargetPath: "out.txt", Operation: Read})
	if !ok || len(asker.calls) != 1 {
		t.Errorf("read after write grant: ok=%v asks=%d", ok, len(asker.calls))
	}
}

func TestAuthorityAskerError(t *testing.T) {
	boom := errors.New("terminal gone")
	a := NewAuthority(NewStore(""), &recordingAsker{decision: Decision{Allow: true}, err: boom}, t.TempDir())
	ok, err := a.Request(context.Background(), Request{TargetPath: "f", Operation: Read})
	if ok || !errors.Is(err, boom) {
		t.Errorf("Request() = %v, %v", ok, err)
	}
}

func TestPolicyAsker(t *testing.T) {
	p := &PolicyAsker{
		Rules: RulesFromConfig([]config.PermissionRule{
			{Pattern: "/project/**", Operations: "rw", Allow: true, Scope: "session"},
			{Pattern: "mcp://fs/*", Operations: "x", Allow: true},
			{Pattern: "*", Operations: "x", Allow: false, Scope: "always"},
		}),
	}

	tests := []struct {
		req   Request
		allow bool
		scope Scope
	}{
		{Request{TargetPath: "/project/main.go", Operation: Write}, true, Session},
		{Request{TargetPath: "/project", Operation: Read}, true, Session},
		{Request{TargetPath: "/project/main.go", Operation: Execute}, false, Always},
		{Request{TargetPath: "mcp://fs/read", Operation: Execute}, true, Once},
		{Request{TargetPath: "/etc/passwd", Operation: Read}, false, Once},
	}

	for _, tt := range tests {
		d, err := p.Ask(context.Background(), tt.req)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allow != tt.allow || d.Scope != tt.scope {
			t.Errorf("Ask(%s %s) = %+v, want allow=%v scope=%s", tt.req.Operation, tt.req.TargetPath, d, tt.allow, tt.scope)
		}
	}
}
