package router

import (
	"errors"
	"testing"
	"time"

	"github.com/jeanpaul/relay/internal/store"
)

func def(name, description string, keywords ...string) *store.Definition {
	return &store.Definition{Name: name, Description: description, Keywords: keywords}
}

func TestRouteSelectsBestKeywordMatch(t *testing.T) {
	defs := []*store.Definition{
		def("reviewer", "Reviews code for quality issues", "review", "quality", "lint"),
		def("debugger", "Diagnoses crashes and stack traces", "debug", "crash", "stacktrace"),
	}

	r := New()
	matches, err := r.Route("please review this function", defs)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no matches")
	}
	if matches[0].Agent.Name != "reviewer" {
		t.Errorf("top match = %s, want reviewer", matches[0].Agent.Name)
	}
	if len(matches[0].MatchedKeywords) == 0 || matches[0].MatchedKeywords[0] != "review" {
		t.Errorf("MatchedKeywords = %v", matches[0].MatchedKeywords)
	}
}

func TestRouteNameMentionDominates(t *testing.T) {
	defs := []*store.Definition{
		def("reviewer", "Reviews code", "review", "quality"),
		def("debugger", "Diagnoses crashes", "debug", "crash"),
	}

	// Keyword evidence points at reviewer, but the query names the debugger.
	r := New()
	matches, err := r.Route("ask debugger to review the quality of this", defs)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if matches[0].Agent.Name != "debugger" {
		t.Errorf("top match = %s, want debugger (name mention)", matches[0].Agent.Name)
	}
	if !matches[0].NameMatch {
		t.Error("NameMatch not set on name-mentioned agent")
	}
}

func TestRouteAmbiguous(t *testing.T) {
	defs := []*store.Definition{
		def("alpha", "handles deployment", "deploy"),
		def("beta", "handles deployment too", "deploy"),
	}

	r := New()
	_, err := r.Route("deploy the service", defs)
	var ambiguous *AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousError", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Errorf("Candidates = %d, want 2", len(ambiguous.Candidates))
	}
}

func TestRouteNameMentionBreaksTie(t *testing.T) {
	defs := []*store.Definition{
		def("alpha", "handles deployment", "deploy"),
		def("beta", "handles deployment too", "deploy"),
	}

	r := New()
	matches, err := r.Route("alpha deploy the service", defs)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if matches[0].Agent.Name != "alpha" {
		t.Errorf("top match = %s, want alpha", matches[0].Agent.Name)
	}
}

func TestRouteThreshold(t *testing.T) {
	defs := []*store.Definition{
		def("reviewer", "Reviews code", "review"),
	}

	r := New(WithMinScore(1))
	matches, err := r.Route("completely unrelated cooking question", defs)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if matches != nil {
		t.Errorf("matches = %v, want nil for no qualifying agent", matches)
	}
}

func TestRouteTopN(t *testing.T) {
	defs := []*store.Definition{
		def("a", "review helper one", "review"),
		def("b", "review helper two", "review", "quality"),
		def("c", "review helper three", "review", "quality", "lint"),
		def("d", "review helper four", "review", "quality", "lint", "style"),
	}

	r := New(WithTopN(2))
	matches, err := r.Route("review quality lint style", defs)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].Agent.Name != "d" || matches[1].Agent.Name != "c" {
		t.Errorf("order = %s, %s; want d, c", matches[0].Agent.Name, matches[1].Agent.Name)
	}
}

func TestRouteRecencyTieBreak(t *testing.T) {
	older := def("older", "handles deployment", "deploy")
	older.LastModified = time.Now().Add(-time.Hour)
	newer := def("newer", "handles deployment", "deploy")
	newer.LastModified = time.Now()

	// Identical scores would be ambiguous; verify the recency ordering via
	// Rank, which tolerates ties.
	r := New()
	_, err := r.Route("deploy it", []*store.Definition{older, newer})
	var ambiguous *AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousError", err)
	}
	if ambiguous.Candidates[0].Agent.Name != "newer" {
		t.Errorf("first candidate = %s, want newer (recency tie-break)",
			ambiguous.Candidates[0].Agent.Name)
	}
}

func TestRankImplementsRanker(t *testing.T) {
	defs := []*store.Definition{
		def("reviewer", "Reviews code", "review"),
		def("debugger", "Diagnoses crashes", "debug"),
		def("unrelated", "Writes poetry", "poetry"),
	}

	var ranker store.Ranker = New()
	got := ranker.Rank("review this code", defs)
	if len(got) == 0 || got[0].Name != "reviewer" {
		t.Fatalf("Rank = %v", got)
	}
	for _, d := range got {
		if d.Name == "unrelated" {
			t.Error("zero-score definition included in ranking")
		}
	}
}

func TestKeywordStrategyScoring(t *testing.T) {
	s := DefaultStrategy()
	d := def("reviewer", "Reviews code for quality issues", "review", "quality")

	tests := []struct {
		name  string
		query string
		want  float64
	}{
		{"one keyword", "review this", 3 + 1}, // keyword + description substring
		{"two keywords", "review quality now", 3 + 3 + 1 + 1},
		{"description only", "any issues here?", 1},
		{"name mention", "reviewer look at this", 100},
		{"nothing", "bake a cake", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := s.Score(tt.query, d)
			if m.Score != tt.want {
				t.Errorf("Score(%q) = %v, want %v", tt.query, m.Score, tt.want)
			}
		})
	}
}
