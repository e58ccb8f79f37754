// Package router scores agent definitions against a free-form query and
// selects candidates deterministically. The scoring formula lives behind
// Strategy so it can be swapped without touching selection or tie-breaks.
package router

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jeanpaul/relay/internal/store"
)

// Match is one routing candidate.
type Match struct {
	Agent           *store.Definition
	Score           float64
	MatchedKeywords []string
	NameMatch       bool
}

// Strategy computes the relevance of one definition to a query. The Agent
// field of the returned Match is filled in by the router.
type Strategy interface {
	Score(query string, def *store.Definition) Match
}

// AmbiguousError reports multiple equal-top-score candidates with no name
// mention to break the tie. It is surfaced, never auto-resolved.
type AmbiguousError struct {
	Query      string
	Candidates []Match
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, m := range e.Candidates {
		names[i] = m.Agent.Name
	}
	return fmt.Sprintf("router: query matches %s equally; name one explicitly",
		strings.Join(names, ", "))
}

type Router struct {
	strategy Strategy
	minScore float64
	topN     int
}

type Option func(*Router)

func WithStrategy(s Strategy) Option {
	return func(r *Router) { r.strategy = s }
}

// WithMinScore sets the qualifying threshold. Candidates below it are
// dropped; if nothing qualifies the caller falls back to general handling.
func WithMinScore(min float64) Option {
	return func(r *Router) { r.minScore = min }
}

// WithTopN caps how many candidates Route returns.
func WithTopN(n int) Option {
	return func(r *Router) { r.topN = n }
}

func New(opts ...Option) *Router {
	r := &Router{
		strategy: DefaultStrategy(),
		minScore: 1,
		topN:     3,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.topN < 1 {
		r.topN = 1
	}
	return r
}

// Route scores every definition and returns up to topN qualifying matches,
// best first. Tie-break order: exact name match, score, most recently
// modified, lexical name. An empty result means no agent qualified.
func (r *Router) Route(query string, defs []*store.Definition) ([]Match, error) {
	matches := make([]Match, 0, len(defs))
	for _, def := range defs {
		m := r.strategy.Score(query, def)
		m.Agent = def
		if m.Score >= r.minScore {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.NameMatch != b.NameMatch {
			return a.NameMatch
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Agent.LastModified.Equal(b.Agent.LastModified) {
			return a.Agent.LastModified.After(b.Agent.LastModified)
		}
		return a.Agent.Name < b.Agent.Name
	})

	if len(matches) > 1 && !matches[0].NameMatch && matches[0].Score == matches[1].Score {
		tied := []Match{matches[0]}
		for _, m := range matches[1:] {
			if m.Score == matches[0].Score {
				tied = append(tied, m)
			}
		}
		return nil, &AmbiguousError{Query: query, Candidates: tied}
	}

	if len(matches) > r.topN {
		matches = matches[:r.topN]
	}
	return matches, nil
}

// Rank implements store.Ranker: every definition with any relevance at all,
// ordered best first. Used by the store's Search accessor, where ambiguity
// is fine.
func (r *Router) Rank(query string, defs []*store.Definition) []*store.Definition {
	matches := make([]Match, 0, len(defs))
	for _, def := range defs {
		m := r.strategy.Score(query, def)
		m.Agent = def
		if m.Score > 0 {
			matches = append(matches, m)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Agent.Name < matches[j].Agent.Name
	})
	out := make([]*store.Definition, len(matches))
	for i, m := range matches {
		out[i] = m.Agent
	}
	return out
}
