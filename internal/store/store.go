package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
)

// Ranker orders definitions by relevance to a query. The router package
// provides the implementation; the interface lives here to break the
// store→router→store import cycle.
type Ranker interface {
	Rank(query string, defs []*Definition) []*Definition
}

// NotFoundError carries near-miss suggestions so the caller can offer
// "did you mean" hints.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("store: agent %q not found", e.Name)
	}
	return fmt.Sprintf("store: agent %q not found (did you mean: %s?)",
		e.Name, strings.Join(e.Suggestions, ", "))
}

// Store holds agent definitions from two scopes. Project-scope definitions
// shadow global ones with the same name. The zero window of mutation is the
// watcher's write path; reads always see complete entries.
type Store struct {
	projectDir string
	globalDir  string

	mu      sync.RWMutex
	entries map[Scope]map[string]*Definition

	watcher  *watcher
	debounce time.Duration
	warnf    func(format string, args ...any)
}

// Option configures a Store.
type Option func(*Store)

// WithWarnFunc redirects parse warnings, which default to stderr.
func WithWarnFunc(f func(format string, args ...any)) Option {
	return func(s *Store) { s.warnf = f }
}

// WithDebounce overrides the watcher's event-coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// New creates a Store over a project-scope and a global-scope directory.
// Either directory may be empty to disable that scope.
func New(projectDir, globalDir string, opts ...Option) *Store {
	s := &Store{
		projectDir: projectDir,
		globalDir:  globalDir,
		entries: map[Scope]map[string]*Definition{
			ScopeProject: {},
			ScopeGlobal:  {},
		},
		warnf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "[store] "+format+"\n", args...)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load scans both directories. A malformed file is skipped with a warning;
// only an unreadable directory is fatal.
func (s *Store) Load() error {
	if err := s.loadScope(s.projectDir, ScopeProject); err != nil {
		return err
	}
	return s.loadScope(s.globalDir, ScopeGlobal)
}

func (s *Store) loadScope(dir string, scope Scope) error {
	if dir == "" {
		return nil
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: scan %s: %w", dir, err)
	}

	loaded := make(map[string]*Definition)
	for _, e := range dirEntries {
		if e.IsDir() || !isAgentFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := ParseFile(path, scope)
		if err != nil {
			s.warnf("skipping %s: %v", path, err)
			continue
		}
		if prev, ok := loaded[def.Name]; ok {
			s.warnf("duplicate agent %q in %s scope: %s shadows %s",
				def.Name, scope, path, prev.SourcePath)
		}
		loaded[def.Name] = def
	}

	s.mu.Lock()
	s.entries[scope] = loaded
	s.mu.Unlock()
	return nil
}

// Get looks up an agent by name. Project scope shadows global.
func (s *Store) Get(name string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if def, ok := s.entries[ScopeProject][name]; ok {
		return def, nil
	}
	if def, ok := s.entries[ScopeGlobal][name]; ok {
		return def, nil
	}
	return nil, &NotFoundError{Name: name, Suggestions: s.suggestLocked(name)}
}

// All returns a snapshot of the effective registry: every project-scope
// definition plus global ones not shadowed by a project name.
func (s *Store) All() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Definition, 0, len(s.entries[ScopeProject])+len(s.entries[ScopeGlobal]))
	for _, def := range s.entries[ScopeProject] {
		out = append(out, def)
	}
	for name, def := range s.entries[ScopeGlobal] {
		if _, shadowed := s.entries[ScopeProject][name]; !shadowed {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search returns definitions ordered by relevance to the query text.
// Scoring is delegated to the ranker; this is a convenience accessor.
func (s *Store) Search(query string, r Ranker) []*Definition {
	return r.Rank(query, s.All())
}

// Watch starts hot-reload on both scope directories.
func (s *Store) Watch() error {
	w, err := newWatcher(s)
	if err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Close stops the watcher and releases its handles. The registry itself
// stays readable after Close.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.close()
}

// replace atomically installs or updates one entry.
func (s *Store) replace(def *Definition) {
	s.mu.Lock()
	s.entries[def.Scope][def.Name] = def
	s.mu.Unlock()
}

// removeByPath drops whichever entry was loaded from path, if any.
func (s *Store) removeByPath(path string, scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, def := range s.entries[scope] {
		if def.SourcePath == path {
			delete(s.entries[scope], name)
			return
		}
	}
}

// byPath finds the entry loaded from path, for keep-last-valid on reparse
// failure.
func (s *Store) byPath(path string, scope Scope) (*Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, def := range s.entries[scope] {
		if def.SourcePath == path {
			return def, true
		}
	}
	return nil, false
}

func (s *Store) scopeFor(dir string) (Scope, bool) {
	switch dir {
	case s.projectDir:
		return ScopeProject, s.projectDir != ""
	case s.globalDir:
		return ScopeGlobal, s.globalDir != ""
	}
	return "", false
}

// suggestLocked fuzzy-matches name against known agent names. Callers hold
// at least a read lock.
func (s *Store) suggestLocked(name string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, scope := range []Scope{ScopeProject, ScopeGlobal} {
		for n := range s.entries[scope] {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)

	matches := fuzzy.Find(name, names)
	var out []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

func isAgentFile(name string) bool {
	switch filepath.Ext(name) {
	case ".agent", ".md", ".txt":
		return !strings.HasPrefix(name, ".")
	}
	return false
}
