// Package orchestrator wires the registry, router, executor and aggregator
// into the single entry point the CLI calls for one query.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jeanpaul/relay/internal/aggregate"
	"github.com/jeanpaul/relay/internal/executor"
	"github.com/jeanpaul/relay/internal/router"
	"github.com/jeanpaul/relay/internal/store"
)

// ErrNoMatch means no agent qualified for the query. The caller decides the
// fallback (general handling, listing agents, and so on).
var ErrNoMatch = errors.New("orchestrator: no agent matched the query")

// Options selects how a query is dispatched. Agent forces explicit mode;
// otherwise Parallel decides between fanning out to every qualifying
// candidate and running only the best one.
type Options struct {
	Agent          string
	Parallel       bool
	MaxConcurrency int
	PerUnitTimeout time.Duration
}

type Orchestrator struct {
	store  *store.Store
	router *router.Router
	exec   *executor.Executor
	agg    *aggregate.Aggregator
}

func New(st *store.Store, rt *router.Router, ex *executor.Executor, ag *aggregate.Aggregator) *Orchestrator {
	return &Orchestrator{store: st, router: rt, exec: ex, agg: ag}
}

// RouteAndExecute resolves the query to one or more agents, runs them, and
// aggregates the results. Routing failures (unknown agent, ambiguity, no
// match) come back as errors; unit failures come back inside the response.
func (o *Orchestrator) RouteAndExecute(ctx context.Context, query string, opts Options) (aggregate.Response, error) {
	matches, mode, err := o.resolve(query, opts)
	if err != nil {
		return aggregate.Response{}, err
	}

	req := executor.Request{
		Query:          query,
		Mode:           mode,
		MaxConcurrency: opts.MaxConcurrency,
		PerUnitTimeout: opts.PerUnitTimeout,
	}
	results, err := o.exec.ExecuteMany(ctx, matches, req)
	if err != nil {
		return aggregate.Response{}, err
	}
	return o.agg.Aggregate(results, matches), nil
}

func (o *Orchestrator) resolve(query string, opts Options) ([]router.Match, executor.Mode, error) {
	if opts.Agent != "" {
		def, err := o.store.Get(opts.Agent)
		if err != nil {
			return nil, "", err
		}
		return []router.Match{{Agent: def, NameMatch: true}}, executor.ModeExplicit, nil
	}

	matches, err := o.router.Route(query, o.store.All())
	if err != nil {
		return nil, "", err
	}
	if len(matches) == 0 {
		return nil, "", fmt.Errorf("%w: %q", ErrNoMatch, query)
	}

	// Every qualifying candidate runs; the aggregator makes the top-scoring
	// success primary and the rest secondary.
	if opts.Parallel {
		return matches, executor.ModeParallel, nil
	}
	return matches, executor.ModeAuto, nil
}

// ExplicitTarget recognizes the "name: rest of query" addressing form. It
// only triggers when the first word is a plausible agent name, so normal
// prose with a colon ("note: check twice") still routes automatically when
// nothing resembling that agent exists. A head that fuzzy-matches a known
// agent is treated as a misspelled address and surfaced as an error rather
// than silently rerouted.
func ExplicitTarget(query string, st *store.Store) (agent, rest string, ok bool, err error) {
	head, tail, found := strings.Cut(query, ":")
	if !found {
		return "", "", false, nil
	}
	head = strings.TrimSpace(head)
	if head == "" || strings.ContainsAny(head, " \t") {
		return "", "", false, nil
	}
	if _, gerr := st.Get(head); gerr != nil {
		var nf *store.NotFoundError
		if errors.As(gerr, &nf) && len(nf.Suggestions) > 0 {
			return "", "", false, gerr
		}
		return "", "", false, nil
	}
	return head, strings.TrimSpace(tail), true, nil
}
