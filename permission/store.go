package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"ollmchat/config"
)

// Store holds the session and global grant maps. Keys are normalized
// paths, values are permission records.
//
// The session map lives for the process; the global map mirrors a JSON file
// that is rewritten in full on every change.
type Store struct {
	mu      sync.Mutex
	file    string
	session map[string]string
	global  map[string]string
}

// NewStore creates a store backed by file. An empty file name gives a
// store without durable storage.
func NewStore(file string) *Store {
	return &Store{
		file:    file,
		session: make(map[string]string),
		global:  make(map[string]string),
	}
}

// Persistent reports whether global grants can be written anywhere.
func (s *Store) Persistent() bool {
	return s.file != ""
}

func (s *Store) File() string {
	return s.file
}

// Load reads the global file. A missing file is an empty store. Malformed
// records are kept as-is and evaluate as unknown.
func (s *Store) Load() error {
	if s.file == "" {
		return nil
	}

	data, err := os.ReadFile(s.file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read permissions file: %w", err)
	}

	loaded := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("failed to parse permissions file: %w", err)
		}
	}

	s.mu.Lock()
	s.global = loaded
	s.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[permission] loaded %d global grants from %s", len(loaded), s.file)
	}
	return nil
}

// Session returns the session record for path, or Unknown.
func (s *Store) Session(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lookup(s.session, path)
}

// Global returns the global record for path, or Unknown.
func (s *Store) Global(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lookup(s.global, path)
}

func lookup(m map[string]string, path string) string {
	if r, ok := m[path]; ok {
		return normalize(r)
	}
	return Unknown
}

// SetSession updates the session record for path.
func (s *Store) SetSession(path string, op Operation, allow bool) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := UpdateString(lookup(s.session, path), op, allow)
	s.session[path] = r
	return r
}

// SetGlobal updates the global record for path and rewrites the file.
func (s *Store) SetGlobal(path string, op Operation, allow bool) (string, error) {
	if s.file == "" {
		return "", errors.New("no permissions file configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := UpdateString(lookup(s.global, path), op, allow)
	s.global[path] = r

	if err := s.save(); err != nil {
		return r, err
	}
	return r, nil
}

// save writes the whole global map. Called with mu held.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0700); err != nil {
		return fmt.Errorf("failed to create permissions directory: %w", err)
	}

	data, err := json.MarshalIndent(s.global, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode permissions: %w", err)
	}

	tmp := s.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write permissions file: %w", err)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write permissions file: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[permission] saved %d global grants", len(s.global))
	}
	return nil
}

// Grant is one stored entry, for listings.
type Grant struct {
	Path   string
	Record string
	Global bool
}

// Grants lists every stored entry, session entries first, sorted by path.
func (s *Store) Grants() []Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Grant
	for _, m := range []struct {
		entries map[string]string
		global  bool
	}{{s.session, false}, {s.global, true}} {
		keys := make([]string, 0, len(m.entries))
		for k := range m.entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Grant{Path: k, Record: m.entries[k], Global: m.global})
		}
	}
	return out
}
