package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/config"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/manager"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/multiagent"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(args []string) error {
	cfgPath := configPath(args)

	// Some checks work without a loaded config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Catalog", Fn: checkCatalog},
		{Name: "Metrics store", Fn: checkMetricsStore},
		{Name: "Tracer", Fn: checkTracer},
		{Name: "Agents", Fn: checkAgents},
		{Name: "Disk space", Fn: checkDiskSpace},
	}

	pass, warn, fail := runChecks(os.Stdout, cfg, checks)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before starting the runtime.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nThe runtime should work, but consider addressing the warnings.")
	} else if pass > 0 {
		fmt.Println("\nAll checks passed!")
	}
	return nil
}

func runChecks(w io.Writer, cfg *config.Config, checks []Check) (pass, warn, fail int) {
	fmt.Fprintln(w, "suoke-agents doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", colorIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func colorIcon(s CheckStatus) string {
	icon := statusIcon(s)
	switch s {
	case StatusPass:
		return color.GreenString(icon)
	case StatusWarn:
		return color.YellowString(icon)
	case StatusFail:
		return color.RedString(icon)
	}
	return icon
}

// checkConfigFile returns a check that verifies the config file exists and parses correctly.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config file error: %v", cfgErr),
				Fix:     "Check the YAML/TOML syntax and the values reported above",
			}
		}

		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s; using defaults", cfgPath),
				Fix:     "Create config.yaml or pass --config PATH",
			}
		}

		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkCatalog verifies that configured strategies layer cleanly over the built-ins.
func checkCatalog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check; config not loaded"}
	}
	mcfg, err := managerConfig(cfg)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Agent ids are xiaoai, xiaoke, laoke and soer",
		}
	}
	c, err := multiagent.NewCatalog(multiagent.DefaultStrategies(), mcfg.Strategies)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d categories (%d configured)", c.Len(), len(mcfg.Strategies)),
	}
}

// checkMetricsStore opens the snapshot database and reads from it.
func checkMetricsStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check; config not loaded"}
	}
	if !cfg.MetricsStore.Enabled {
		return CheckResult{Status: StatusPass, Message: "metrics persistence disabled"}
	}

	store, err := openStore(cfg.MetricsStore)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot open %s: %v", cfg.MetricsStore.Path, err),
			Fix:     fmt.Sprintf("Check permissions on %s", filepath.Dir(cfg.MetricsStore.Path)),
		}
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.ListSnapshots(ctx, domain.AgentDiagnostic, 1); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("query failed: %v", err),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("sqlite store at %s", cfg.MetricsStore.Path),
	}
}

func checkTracer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check; config not loaded"}
	}
	if !cfg.Tracer.Enabled || cfg.Tracer.Exporter == "noop" {
		return CheckResult{Status: StatusPass, Message: "tracing disabled"}
	}
	if out := cfg.Tracer.Output; out != "" && out != "stdout" {
		if _, err := os.Stat(filepath.Dir(out)); err != nil {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("trace output directory missing: %s", filepath.Dir(out)),
				Fix:     fmt.Sprintf("mkdir -p %s", filepath.Dir(out)),
			}
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("exporter %s", cfg.Tracer.Exporter),
	}
}

// checkAgents boots an isolated runtime and health-checks every preloaded agent.
func checkAgents(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check; config not loaded"}
	}
	mcfg, err := managerConfig(cfg)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	mcfg.AutoRestart = false

	m, err := manager.New(mcfg, manager.Deps{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Initialize(ctx); err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("initialize: %v", err)}
	}
	defer m.Shutdown(ctx)

	if unhealthy := m.CheckHealth(ctx); len(unhealthy) > 0 {
		names := make([]string, len(unhealthy))
		for i, id := range unhealthy {
			names[i] = string(id)
		}
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("unhealthy: %s", strings.Join(names, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agents initialized and healthy", len(mcfg.PreloadAgents)),
	}
}

func checkDiskSpace(cfg *config.Config) CheckResult {
	dataDir := "./data"
	if cfg != nil && cfg.MetricsStore.Path != "" {
		dataDir = filepath.Dir(cfg.MetricsStore.Path)
	}

	absDir, _ := filepath.Abs(dataDir)

	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusPass,
			Message: "data directory does not exist yet; space check skipped",
		}
	}

	out, err := exec.Command("df", "-h", absDir).Output()
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: "could not determine disk space (df command failed)",
		}
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 {
		return CheckResult{Status: StatusWarn, Message: "unexpected df output format"}
	}

	available := fields[3]
	usePercent := fields[4]

	var pct int
	fmt.Sscanf(strings.TrimSuffix(usePercent, "%"), "%d", &pct)

	if pct >= 95 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("disk almost full: %s used, %s available", usePercent, available),
			Fix:     "Free up disk space or move metrics_store.path to another partition",
		}
	}
	if pct >= 85 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("disk usage high: %s used, %s available", usePercent, available),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("disk usage: %s used, %s available", usePercent, available),
	}
}
