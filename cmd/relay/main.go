package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jeanpaul/relay/internal/aggregate"
	"github.com/jeanpaul/relay/internal/config"
	"github.com/jeanpaul/relay/internal/executor"
	"github.com/jeanpaul/relay/internal/orchestrator"
	"github.com/jeanpaul/relay/internal/router"
	"github.com/jeanpaul/relay/internal/store"
	"github.com/jeanpaul/relay/pkg/version"
)

func main() {
	agentFlag := flag.String("agent", "", "Run a specific agent by name, skipping routing")
	parallelFlag := flag.Bool("parallel", false, "Fan the query out to every qualifying agent")
	concurrencyFlag := flag.Int("concurrency", 0, "Max agents in flight at once (default from config)")
	timeoutFlag := flag.Duration("timeout", 0, "Per-agent timeout (default from config)")
	batchFlag := flag.String("batch", "", "Run a batch file of prompts as separate processes")
	sepFlag := flag.String("sep", "---", "Prompt separator line in the batch file")
	listFlag := flag.Bool("list", false, "List known agents and exit")
	versionFlag := flag.Bool("version", false, "Print version")
	helpFlag := flag.Bool("help", false, "Show help")
	flag.BoolVar(helpFlag, "h", false, "Show help")

	flag.Usage = showHelp
	flag.Parse()

	if *helpFlag {
		showHelp()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Printf("relay %s (%s)\n", version.Version, version.Commit)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("%v", err)
	}
	if *concurrencyFlag > 0 {
		cfg.MaxConcurrency = *concurrencyFlag
	}
	if *timeoutFlag > 0 {
		cfg.PerUnitTimeout = *timeoutFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *batchFlag != "" {
		os.Exit(runBatch(ctx, cfg, *batchFlag, *sepFlag))
	}

	st := store.New(cfg.ProjectAgentsDir, cfg.GlobalAgentsDir, store.WithDebounce(cfg.DebounceWindow))
	if err := st.Load(); err != nil {
		fatal("%v", err)
	}
	if err := st.Watch(); err != nil {
		fmt.Fprintf(os.Stderr, "[relay] hot reload unavailable: %v\n", err)
	}
	defer st.Close()

	if *listFlag {
		listAgents(st)
		os.Exit(0)
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		showHelp()
		os.Exit(2)
	}

	opts := orchestrator.Options{
		Agent:          *agentFlag,
		Parallel:       *parallelFlag,
		MaxConcurrency: cfg.MaxConcurrency,
		PerUnitTimeout: cfg.PerUnitTimeout,
	}
	if opts.Agent == "" {
		name, rest, ok, err := orchestrator.ExplicitTarget(query, st)
		if err != nil {
			fatal("%v", err)
		}
		if ok {
			opts.Agent, query = name, rest
		}
	}

	orch := orchestrator.New(
		st,
		router.New(router.WithMinScore(cfg.MinScore), router.WithTopN(cfg.TopN)),
		executor.New(commandGenerate(cfg)),
		aggregate.New(),
	)

	resp, err := orch.RouteAndExecute(ctx, query, opts)
	if err != nil {
		var ambiguous *router.AmbiguousError
		var notFound *store.NotFoundError
		switch {
		case errors.As(err, &ambiguous), errors.As(err, &notFound):
			fatal("%v", err)
		case errors.Is(err, orchestrator.ErrNoMatch):
			fatal("%v (try -list, or -agent <name>)", err)
		default:
			fatal("%v", err)
		}
	}
	printResponse(resp)
	if resp.Status == aggregate.StatusFailed {
		os.Exit(1)
	}
}

// commandGenerate adapts the configured runner command into the executor's
// generation seam: one process per unit, prompt on stdin, stdout as the
// answer. Model and provider hints travel in the environment.
func commandGenerate(cfg *config.Config) executor.GenerateFunc {
	return func(ctx context.Context, def *store.Definition, prompt string) (string, error) {
		if cfg.Runner.Command == "" {
			return "", fmt.Errorf("no runner.command configured")
		}
		cmd := exec.CommandContext(ctx, cfg.Runner.Command, cfg.Runner.Args...)
		cmd.Stdin = strings.NewReader(prompt)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		cmd.Env = append(os.Environ(),
			"RELAY_AGENT="+def.Name,
			"RELAY_MODEL="+def.ModelHint,
			"RELAY_PROVIDER="+def.ProviderHint,
		)
		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return "", fmt.Errorf("%s: %s", cfg.Runner.Command, msg)
			}
			return "", err
		}
		return strings.TrimSpace(stdout.String()), nil
	}
}

func printResponse(resp aggregate.Response) {
	if resp.Primary != nil {
		fmt.Println(AgentStyle.Render("["+resp.Primary.AgentName+"]") + " " + DimStyle.Render(string(resp.Status)))
	}
	fmt.Println(resp.SynthesizedText)
	for _, c := range resp.Conflicts {
		fmt.Fprintln(os.Stderr, WarnStyle.Render(
			fmt.Sprintf("conflict: %s vs %s: %s", c.PrimaryAgent, c.SecondaryAgent, c.Note)))
	}
}

func listAgents(st *store.Store) {
	defs := st.All()
	if len(defs) == 0 {
		fmt.Println(DimStyle.Render("no agents found"))
		return
	}
	fmt.Println(HeaderStyle.Render("AGENTS"))
	for _, d := range defs {
		fmt.Printf("  %s %s %s\n",
			AgentStyle.Render(d.Name),
			DimStyle.Render("("+string(d.Scope)+")"),
			d.Description)
	}
}

func showHelp() {
	fmt.Println(HeaderStyle.Render("relay") + " - route queries to the right agent")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  relay [flags] <query>")
	fmt.Println("  relay <agent>: <query>        address an agent by name")
	fmt.Println("  relay -batch tasks.txt        run prompts as parallel processes")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, ErrorStyle.Render("error: "+msg))
	os.Exit(1)
}
