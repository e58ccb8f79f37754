package store

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

type Scope string

const (
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

// Definition is a parsed agent specification file. Instances handed out by
// the Store are snapshots: a reload replaces the entry, it never mutates one
// already in a caller's hands.
type Definition struct {
	Name          string
	Description   string
	Keywords      []string
	ToolAllowlist []string
	ModelHint     string
	ProviderHint  string
	Temperature   float64
	MaxTokens     int
	Color         string

	SystemPrompt string
	Scope        Scope
	SourcePath   string
	LastModified time.Time
}

// AllowsTool reports whether the definition permits the named tool.
// An empty allowlist means all tools are allowed. Entries are doublestar
// patterns, so "file_*" covers file_read, file_write, etc.
func (d *Definition) AllowsTool(name string) bool {
	if len(d.ToolAllowlist) == 0 {
		return true
	}
	for _, pattern := range d.ToolAllowlist {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
