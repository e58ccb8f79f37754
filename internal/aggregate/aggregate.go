// Package aggregate merges the per-agent execution results of one query
// into a single response: a primary answer, secondary answers, and any
// conflicts between them.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/jeanpaul/relay/internal/executor"
	"github.com/jeanpaul/relay/internal/router"
)

type Status string

const (
	// StatusSuccess: every unit succeeded.
	StatusSuccess Status = "success"
	// StatusPartial: at least one unit succeeded, at least one did not.
	// The primary (after promotion) is still usable.
	StatusPartial Status = "partial"
	// StatusFailed: no unit succeeded; all errors are surfaced.
	StatusFailed Status = "failed"
)

// Conflict records a divergence between the primary answer and a secondary
// one addressing the same query.
type Conflict struct {
	PrimaryAgent   string
	SecondaryAgent string
	Overlap        float64
	Note           string
}

type Response struct {
	Status          Status
	Primary         *executor.Result
	Secondary       []executor.Result
	Conflicts       []Conflict
	SynthesizedText string
}

type Aggregator struct {
	cmp Comparator
}

type Option func(*Aggregator)

func WithComparator(c Comparator) Option {
	return func(a *Aggregator) { a.cmp = c }
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{cmp: NewDiffComparator()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate classifies results (aligned index-for-index with matches) and
// synthesizes one response. The highest-scoring successful unit is primary,
// so a failed best candidate promotes the next successful one; slice order
// only breaks score ties.
func (a *Aggregator) Aggregate(results []executor.Result, matches []router.Match) Response {
	var resp Response

	primaryIdx := -1
	for i, r := range results {
		if r.Status != executor.StatusSuccess {
			continue
		}
		if primaryIdx == -1 {
			primaryIdx = i
			continue
		}
		if i < len(matches) && primaryIdx < len(matches) && matches[i].Score > matches[primaryIdx].Score {
			primaryIdx = i
		}
	}

	if primaryIdx == -1 {
		resp.Status = StatusFailed
		resp.Secondary = append(resp.Secondary, results...)
		var errs []string
		for _, r := range results {
			errs = append(errs, fmt.Sprintf("%s: %s (%s)", r.AgentName, r.Err, r.Status))
		}
		resp.SynthesizedText = "all agents failed:\n" + strings.Join(errs, "\n")
		return resp
	}

	primary := results[primaryIdx]
	resp.Primary = &primary

	failures := 0
	for i, r := range results {
		if i == primaryIdx {
			continue
		}
		resp.Secondary = append(resp.Secondary, r)
		if r.Status != executor.StatusSuccess {
			failures++
			continue
		}
		if divergent, overlap, note := a.cmp.Compare(primary.Output, r.Output); divergent {
			resp.Conflicts = append(resp.Conflicts, Conflict{
				PrimaryAgent:   primary.AgentName,
				SecondaryAgent: r.AgentName,
				Overlap:        overlap,
				Note:           note,
			})
		}
	}

	if failures == 0 {
		resp.Status = StatusSuccess
	} else {
		resp.Status = StatusPartial
	}

	resp.SynthesizedText = a.synthesize(primary, resp.Secondary, resp.Conflicts)
	return resp
}

func (a *Aggregator) synthesize(primary executor.Result, secondary []executor.Result, conflicts []Conflict) string {
	var b strings.Builder
	b.WriteString(primary.Output)

	if len(secondary) == 0 {
		return b.String()
	}

	var notes []string
	agreed := 0
	conflicted := make(map[string]Conflict, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.SecondaryAgent] = c
	}
	for _, r := range secondary {
		switch {
		case r.Status != executor.StatusSuccess:
			notes = append(notes, fmt.Sprintf("%s did not complete (%s)", r.AgentName, r.Status))
		default:
			if c, ok := conflicted[r.AgentName]; ok {
				notes = append(notes, fmt.Sprintf("%s disagrees (%s)", r.AgentName, c.Note))
			} else {
				agreed++
			}
		}
	}
	if agreed > 0 {
		notes = append([]string{fmt.Sprintf("%d secondary agent(s) broadly agree", agreed)}, notes...)
	}
	if len(notes) > 0 {
		b.WriteString("\n\n---\n")
		b.WriteString(strings.Join(notes, "\n"))
	}
	return b.String()
}
