package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeanpaul/relay/internal/config"
	"github.com/jeanpaul/relay/internal/runner"
)

// runBatch executes a file of prompts as independent OS processes and
// prints a per-task summary. Returns the process exit code: 0 only when
// every task succeeded.
func runBatch(ctx context.Context, cfg *config.Config, path, sep string) int {
	prompts, err := readPrompts(path, sep)
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: "+err.Error()))
		return 1
	}
	if len(prompts) == 0 {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: no prompts in "+path))
		return 1
	}
	if cfg.Runner.Command == "" {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: no runner.command configured"))
		return 1
	}
	if err := os.MkdirAll(cfg.Runner.OutputDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: "+err.Error()))
		return 1
	}

	r, err := runner.New(runner.Options{
		Command:        cfg.Runner.Command,
		Args:           cfg.Runner.Args,
		MaxConcurrency: cfg.MaxConcurrency,
		Timeout:        cfg.PerUnitTimeout,
		GracePeriod:    cfg.Runner.GracePeriod,
		SinkFor:        fileSinks(cfg.Runner.OutputDir),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: "+err.Error()))
		return 1
	}

	tasks := r.Run(ctx, prompts)
	printBatchSummary(tasks, cfg.Runner.OutputDir)

	for _, t := range tasks {
		if t.Status != runner.StatusSuccess {
			return 1
		}
	}
	return 0
}

// fileSinks writes each task's output to <dir>/<taskID>.out and .err.
func fileSinks(dir string) func(string) (io.Writer, io.Writer, func() error, error) {
	return func(taskID string) (io.Writer, io.Writer, func() error, error) {
		stdout, err := os.Create(filepath.Join(dir, taskID+".out"))
		if err != nil {
			return nil, nil, nil, err
		}
		stderr, err := os.Create(filepath.Join(dir, taskID+".err"))
		if err != nil {
			stdout.Close()
			return nil, nil, nil, err
		}
		cleanup := func() error {
			err1 := stdout.Close()
			err2 := stderr.Close()
			if err1 != nil {
				return err1
			}
			return err2
		}
		return stdout, stderr, cleanup, nil
	}
}

func readPrompts(path, sep string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var prompts []string
	for _, chunk := range strings.Split(string(data), "\n"+sep+"\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			prompts = append(prompts, chunk)
		}
	}
	return prompts, nil
}

func printBatchSummary(tasks []runner.Task, outputDir string) {
	summary := runner.Summarize(tasks)

	fmt.Println(HeaderStyle.Render("BATCH SUMMARY"))
	for i, t := range tasks {
		style := OKStyle
		switch t.Status {
		case runner.StatusFailed:
			style = FailStyle
		case runner.StatusCancelled:
			style = WarnStyle
		}
		line := fmt.Sprintf("  %2d  %-9s  %6dms  %s", i+1, t.Status, t.DurationMs, shorten(t.Prompt, 48))
		fmt.Println(style.Render(line))
		if t.Err != "" {
			fmt.Println(DimStyle.Render("      " + t.Err))
		}
	}
	fmt.Println(DimStyle.Render(fmt.Sprintf(
		"  %d succeeded, %d failed, %d cancelled; longest task %dms; output in %s",
		summary.Succeeded, summary.Failed, summary.Cancelled, summary.MaxDurationMs, outputDir)))
}

func shorten(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
