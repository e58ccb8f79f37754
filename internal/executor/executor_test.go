package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jeanpaul/relay/internal/router"
	"github.com/jeanpaul/relay/internal/store"
)

func matchesFor(names ...string) []router.Match {
	out := make([]router.Match, len(names))
	for i, n := range names {
		out[i] = router.Match{Agent: &store.Definition{Name: n, Description: n}}
	}
	return out
}

func req(concurrency int) Request {
	return Request{
		Query:          "do the thing",
		Mode:           ModeParallel,
		MaxConcurrency: concurrency,
		PerUnitTimeout: 5 * time.Second,
	}
}

func TestExecuteManyPartialFailure(t *testing.T) {
	gen := func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		if def.Name == "flaky" {
			return "", errors.New("model unavailable")
		}
		return "answer from " + def.Name, nil
	}

	e := New(gen)
	matches := matchesFor("solid", "flaky", "steady")
	results, err := e.ExecuteMany(context.Background(), matches, req(2))
	if err != nil {
		t.Fatalf("ExecuteMany: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}

	// Input order is preserved regardless of completion order.
	for i, name := range []string{"solid", "flaky", "steady"} {
		if results[i].AgentName != name {
			t.Errorf("results[%d].AgentName = %s, want %s", i, results[i].AgentName, name)
		}
	}
	if results[0].Status != StatusSuccess || results[2].Status != StatusSuccess {
		t.Errorf("healthy units failed: %+v", results)
	}
	if results[1].Status != StatusError {
		t.Errorf("flaky unit status = %s, want error", results[1].Status)
	}
	if !strings.Contains(results[1].Err, "model unavailable") {
		t.Errorf("flaky unit error = %q", results[1].Err)
	}
	if results[0].Output != "answer from solid" {
		t.Errorf("Output = %q", results[0].Output)
	}
}

func TestExecuteManyHonorsConcurrencyLimit(t *testing.T) {
	const limit = 2
	var inFlight, peak int32
	var mu sync.Mutex

	gen := func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return "ok", nil
	}

	e := New(gen)
	matches := matchesFor("a", "b", "c", "d", "e")
	r := req(limit)
	if _, err := e.ExecuteMany(context.Background(), matches, r); err != nil {
		t.Fatalf("ExecuteMany: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > limit {
		t.Errorf("peak concurrency = %d, want <= %d", peak, limit)
	}
}

func TestExecuteManyCancellation(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	gen := func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		started <- struct{}{}
		select {
		case <-release:
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := New(gen)
	matches := matchesFor("a", "b", "c", "d")
	r := req(1)

	done := make(chan []Result, 1)
	go func() {
		results, _ := e.ExecuteMany(ctx, matches, r)
		done <- results
	}()

	<-started
	cancel()
	close(release)
	results := <-done

	if len(results) != 4 {
		t.Fatalf("len(results) = %d, want 4", len(results))
	}
	cancelled := 0
	for _, res := range results {
		if res.Status == StatusCancelled {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Errorf("no unit marked cancelled: %+v", results)
	}
}

func TestExecuteOneTimeout(t *testing.T) {
	gen := func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	e := New(gen)
	d := &store.Definition{Name: "slow"}
	result := e.ExecuteOne(context.Background(), d, "query", 20*time.Millisecond)

	if result.Status != StatusTimeout {
		t.Errorf("Status = %s, want timeout", result.Status)
	}
	if !strings.Contains(result.Err, "timed out") {
		t.Errorf("Err = %q", result.Err)
	}
}

func TestExecuteOnePanicRecovery(t *testing.T) {
	gen := func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		panic("callback exploded")
	}

	e := New(gen)
	result := e.ExecuteOne(context.Background(), &store.Definition{Name: "boom"}, "q", time.Second)
	if result.Status != StatusError {
		t.Errorf("Status = %s, want error", result.Status)
	}
	if !strings.Contains(result.Err, "callback exploded") {
		t.Errorf("Err = %q", result.Err)
	}
}

func TestExecuteOnePromptIncludesSystemPrompt(t *testing.T) {
	var got string
	gen := func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		got = prompt
		return "ok", nil
	}

	e := New(gen)
	d := &store.Definition{Name: "helper", SystemPrompt: "You are a helper."}
	e.ExecuteOne(context.Background(), d, "what is 2+2?", time.Second)

	if got != "You are a helper.\n\nwhat is 2+2?" {
		t.Errorf("prompt = %q", got)
	}
}

func TestRequestValidate(t *testing.T) {
	valid := req(2)
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"empty query", func(r *Request) { r.Query = "" }},
		{"bad mode", func(r *Request) { r.Mode = "bogus" }},
		{"zero concurrency", func(r *Request) { r.MaxConcurrency = 0 }},
		{"zero timeout", func(r *Request) { r.PerUnitTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() = %v, want ErrInvalidRequest", err)
			}
		})
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestExecuteManyRejectsInvalidRequest(t *testing.T) {
	e := New(func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		return "", fmt.Errorf("should not run")
	})
	_, err := e.ExecuteMany(context.Background(), matchesFor("a"), Request{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}
