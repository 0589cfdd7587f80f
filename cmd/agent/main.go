package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/config"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/logger"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runInteractive(args)
	case "submit":
		err = runSubmit(args)
	case "catalog":
		err = runCatalog(args)
	case "agents":
		err = runAgents(args)
	case "history":
		err = runHistory(args)
	case "doctor":
		err = runDoctor(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'suoke-agents --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`suoke-agents - multi-agent orchestration runtime

USAGE:
    suoke-agents [COMMAND] [FLAGS]

COMMANDS:
    run         Read messages from stdin, one per line, and print each result
    submit      Submit a single message and print the result
    catalog     List the collaboration strategies
    agents      Start the agents and list their status and capabilities
    history     Show persisted metrics snapshots (--agent ID, --limit N, --prune)
    doctor      Run health checks on config, storage and agents

    (no command) - same as run

FLAGS:
    -h, --help           Show this help message
    --config PATH        Config file path (default: ./config.yaml)
    --user ID            User id; required for submit, run defaults to "cli"
    --channel NAME       Channel: chat, suoke, explore, life
    --category NAME      Collaboration category, e.g. health_diagnosis
    --capability NAME    Only list agents advertising this capability
    --json               Print the final overview as JSON

CONFIGURATION:
    Config file: ./config.yaml or config.toml
    Environment: SUOKE_* variables override config

EXAMPLES:
    suoke-agents submit --user u1 --category health_diagnosis "I feel tired and cold"
    echo '{"message":"recommend tea","user_id":"u2","channel":"suoke"}' | suoke-agents run
    suoke-agents catalog
    suoke-agents agents --capability xiaoai.constitution.assess
    suoke-agents history --agent xiaoai --limit 5
    suoke-agents doctor`)
}

// configPath returns the --config flag, $SUOKE_CONFIG, or ./config.yaml.
func configPath(args []string) string {
	if p := flagValue(args, "config"); p != "" {
		return p
	}
	if p := os.Getenv("SUOKE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// flagValue extracts --name VALUE or --name=VALUE from args.
func flagValue(args []string, name string) string {
	long := "--" + name
	for i, arg := range args {
		if arg == long && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, long+"="); ok {
			return v
		}
	}
	return ""
}

// hasFlag reports whether the boolean flag --name is present.
func hasFlag(args []string, name string) bool {
	for _, arg := range args {
		if arg == "--"+name {
			return true
		}
	}
	return false
}

// positional returns args with every --flag (and its value) removed.
func positional(args []string, valued ...string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			out = append(out, arg)
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if strings.Contains(name, "=") {
			continue
		}
		for _, v := range valued {
			if name == v {
				i++
				break
			}
		}
	}
	return out
}

var valuedFlags = []string{"config", "user", "channel", "category", "session", "capability", "agent", "limit"}

// app bundles the process-wide components every command needs.
type app struct {
	cfg     *config.Config
	env     *environment
	cleanup func()
}

// bootstrap loads config and starts logging, tracing and the manager.
func bootstrap(ctx context.Context, args []string) (*app, error) {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, fmt.Errorf("tracer: %w", err)
	}

	env, err := newEnvironment(ctx, cfg, log)
	if err != nil {
		_ = tracerShutdown(ctx)
		logCloser()
		return nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := env.Close(shutdownCtx); err != nil {
			log.Error("shutdown error", "error", err)
		}
		if err := tracerShutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown error", "error", err)
		}
		logCloser()
	}
	return &app{cfg: cfg, env: env, cleanup: cleanup}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
