// Package runner executes independent batch prompts as isolated OS
// processes under the same sliding-window discipline the executor applies
// in-process: at most MaxConcurrency children at a time, the next prompt
// dispatched the instant any child exits.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Environment variables set on every child so a task can identify itself
// and its batch.
const (
	EnvTaskID  = "RELAY_TASK_ID"
	EnvBatchID = "RELAY_BATCH_ID"
)

// Task is one prompt's execution record. Status transitions
// pending → running → {success, failed, cancelled} and never moves again.
type Task struct {
	ID         string
	Prompt     string
	Status     Status
	ExitCode   int
	DurationMs int64
	Err        string
}

// Options configures a Runner. The prompt is written to each child's stdin;
// Command and Args are the same for every task.
type Options struct {
	Command        string
	Args           []string
	MaxConcurrency int
	Timeout        time.Duration // per-task wall clock, 0 = unlimited
	GracePeriod    time.Duration // SIGTERM → SIGKILL escalation, default 5s
	Env            []string      // extra environment, appended to os.Environ

	// SinkFor supplies per-task stdout/stderr sinks. cleanup may be nil.
	// The default discards output; the CLI wires per-task files here.
	SinkFor func(taskID string) (stdout, stderr io.Writer, cleanup func() error, err error)
}

type Runner struct {
	opts    Options
	batchID string

	mu      sync.Mutex
	running map[string]*exec.Cmd
	cancel  context.CancelFunc
}

func New(opts Options) (*Runner, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("runner: command is required")
	}
	if opts.MaxConcurrency < 1 {
		return nil, fmt.Errorf("runner: maxConcurrency must be >= 1, got %d", opts.MaxConcurrency)
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 5 * time.Second
	}
	if opts.SinkFor == nil {
		opts.SinkFor = func(string) (io.Writer, io.Writer, func() error, error) {
			return io.Discard, io.Discard, nil, nil
		}
	}
	return &Runner{
		opts:    opts,
		batchID: uuid.NewString(),
		running: make(map[string]*exec.Cmd),
	}, nil
}

// Run drains the prompts through the process window and returns one task
// per prompt, in input order. A failing or killed child never aborts the
// batch; its failure lands in its task record.
func (r *Runner) Run(ctx context.Context, prompts []string) []Task {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	tasks := make([]Task, len(prompts))
	for i, p := range prompts {
		tasks[i] = Task{ID: uuid.NewString(), Prompt: p, Status: StatusPending}
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.opts.MaxConcurrency)

	for i := range tasks {
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				t.Status = StatusCancelled
				t.Err = "cancelled before start"
				return
			}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				t.Status = StatusCancelled
				t.Err = "cancelled before start"
				return
			}
			r.runTask(ctx, t)
		}(&tasks[i])
	}

	wg.Wait()
	return tasks
}

// Cancel stops new dispatches and terminates running children. Safe to call
// mid-run, more than once, or before Run.
func (r *Runner) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runner) runTask(ctx context.Context, t *Task) {
	stdout, stderr, cleanup, err := r.opts.SinkFor(t.ID)
	if err != nil {
		t.Status = StatusFailed
		t.Err = fmt.Sprintf("output sink: %v", err)
		return
	}
	if cleanup != nil {
		defer func() {
			if cerr := cleanup(); cerr != nil && t.Err == "" {
				t.Err = cerr.Error()
			}
		}()
	}

	cmd := exec.Command(r.opts.Command, r.opts.Args...)
	cmd.Stdin = strings.NewReader(t.Prompt)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// Own process group, so termination reaches forked grandchildren that
	// would otherwise survive and hold the output pipes open. WaitDelay
	// bounds Wait against any descendant that still escapes the group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.opts.GracePeriod
	cmd.Env = append(os.Environ(), r.opts.Env...)
	cmd.Env = append(cmd.Env,
		EnvTaskID+"="+t.ID,
		EnvBatchID+"="+r.batchID,
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		t.Status = StatusFailed
		t.ExitCode = -1
		t.Err = fmt.Sprintf("spawn: %v", err)
		return
	}
	t.Status = StatusRunning

	r.mu.Lock()
	r.running[t.ID] = cmd
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, t.ID)
		r.mu.Unlock()
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if r.opts.Timeout > 0 {
		timer := time.NewTimer(r.opts.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var waitErr error
	terminal := StatusSuccess
	select {
	case waitErr = <-waitCh:
		if waitErr != nil {
			terminal = StatusFailed
		}
	case <-timeoutCh:
		waitErr = r.terminate(cmd, waitCh)
		terminal = StatusFailed
		t.Err = fmt.Sprintf("timed out after %s", r.opts.Timeout)
	case <-ctx.Done():
		waitErr = r.terminate(cmd, waitCh)
		terminal = StatusCancelled
		t.Err = "cancelled"
	}

	t.DurationMs = time.Since(start).Milliseconds()
	t.Status = terminal
	t.ExitCode = exitCode(waitErr)
	if terminal == StatusFailed && t.Err == "" && waitErr != nil {
		t.Err = waitErr.Error()
	}
}

// terminate asks the child's process group to exit, then kills the group
// after the grace period.
func (r *Runner) terminate(cmd *exec.Cmd, waitCh <-chan error) error {
	if cmd.Process != nil {
		signalGroup(cmd.Process.Pid, syscall.SIGTERM)
	}
	select {
	case err := <-waitCh:
		return err
	case <-time.After(r.opts.GracePeriod):
		if cmd.Process != nil {
			signalGroup(cmd.Process.Pid, syscall.SIGKILL)
		}
		return <-waitCh
	}
}

// signalGroup signals the process group led by pid, falling back to the
// process itself if the group is already gone.
func signalGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = syscall.Kill(pid, sig)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
