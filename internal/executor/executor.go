// Package executor runs selected agents under a bounded-concurrency window.
// At most MaxConcurrency units are in flight; as soon as one finishes the
// next queued unit is dispatched. Unit failures are values in the result
// slice, never errors that abort the batch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeanpaul/relay/internal/router"
	"github.com/jeanpaul/relay/internal/store"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

type Mode string

const (
	ModeExplicit Mode = "explicit"
	ModeAuto     Mode = "auto"
	ModeParallel Mode = "parallel"
)

// GenerateFunc is the seam to the actual LLM subsystem. It receives the
// agent definition (model/provider hints, temperature, token limit) and the
// effective prompt, and must honor ctx cancellation.
type GenerateFunc func(ctx context.Context, def *store.Definition, prompt string) (string, error)

// Request carries per-call execution parameters. Invalid parameters are
// caller-fatal; everything downstream is reported inside Results.
type Request struct {
	Query          string
	Mode           Mode
	MaxConcurrency int
	PerUnitTimeout time.Duration
}

var ErrInvalidRequest = errors.New("executor: invalid request")

func (r Request) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	switch r.Mode {
	case ModeExplicit, ModeAuto, ModeParallel:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.MaxConcurrency < 1 {
		return fmt.Errorf("%w: maxConcurrency must be >= 1, got %d", ErrInvalidRequest, r.MaxConcurrency)
	}
	if r.PerUnitTimeout <= 0 {
		return fmt.Errorf("%w: perUnitTimeout must be > 0, got %s", ErrInvalidRequest, r.PerUnitTimeout)
	}
	return nil
}

// Result is the terminal outcome of one agent execution. Exactly one of the
// four statuses; a unit is never left pending.
type Result struct {
	AgentName  string
	Status     Status
	Output     string
	Err        string
	DurationMs int64
}

type Executor struct {
	generate GenerateFunc
}

func New(generate GenerateFunc) *Executor {
	return &Executor{generate: generate}
}

// ExecuteOne runs a single agent with its own timeout and maps the callback
// outcome to a terminal status.
func (e *Executor) ExecuteOne(ctx context.Context, def *store.Definition, query string, timeout time.Duration) Result {
	unitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := e.runSafe(unitCtx, def, buildPrompt(def, query))
	duration := time.Since(start).Milliseconds()

	result := Result{AgentName: def.Name, DurationMs: duration}
	switch {
	case err == nil:
		// A completed result is kept even if the batch was cancelled after.
		result.Status = StatusSuccess
		result.Output = output
	case unitCtx.Err() == context.DeadlineExceeded:
		result.Status = StatusTimeout
		result.Err = fmt.Sprintf("timed out after %s", timeout)
	case ctx.Err() != nil:
		result.Status = StatusCancelled
		result.Err = "cancelled"
	default:
		result.Status = StatusError
		result.Err = err.Error()
	}
	return result
}

// ExecuteMany drains the matches through a fixed-size window. The returned
// slice always has len(matches) entries, in input order; completion order
// does not matter. Cancelling ctx stops new dispatches immediately and
// marks untouched units cancelled.
func (e *Executor) ExecuteMany(ctx context.Context, matches []router.Match, req Request) ([]Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	results := make([]Result, len(matches))
	sem := make(chan struct{}, req.MaxConcurrency)
	done := make(chan int, len(matches))

	for i, m := range matches {
		go func(idx int, def *store.Definition) {
			defer func() { done <- idx }()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = Result{AgentName: def.Name, Status: StatusCancelled, Err: "cancelled before dispatch"}
				return
			}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = Result{AgentName: def.Name, Status: StatusCancelled, Err: "cancelled before dispatch"}
				return
			}
			results[idx] = e.ExecuteOne(ctx, def, req.Query, req.PerUnitTimeout)
		}(i, m.Agent)
	}

	for range matches {
		<-done
	}
	return results, nil
}

// runSafe invokes the generation callback with panic recovery, so a broken
// callback degrades into an error result instead of taking out siblings.
func (e *Executor) runSafe(ctx context.Context, def *store.Definition, prompt string) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor: panic in generation callback: %v", r)
		}
	}()
	return e.generate(ctx, def, prompt)
}

// buildPrompt combines the agent's system prompt with the query.
func buildPrompt(def *store.Definition, query string) string {
	if def.SystemPrompt == "" {
		return query
	}
	return def.SystemPrompt + "\n\n" + query
}
