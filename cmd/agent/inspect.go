package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/config"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/manager"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/scheduling"
)

// runAgents boots the runtime and lists every agent, optionally only
// those advertising --capability.
func runAgents(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, args)
	if err != nil {
		return err
	}
	defer a.cleanup()

	m := a.env.Manager
	statuses := m.AgentStatuses(ctx)
	ids := slices.Sorted(maps.Keys(statuses))
	if capability := flagValue(args, "capability"); capability != "" {
		ids = m.FindByCapability(capability)
	}
	return printAgents(os.Stdout, ids, statuses)
}

func printAgents(w io.Writer, ids []domain.AgentID, statuses map[domain.AgentID]domain.StatusSnapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSTATUS\tVERSION\tINSTANCE\tCAPABILITIES")
	for _, id := range ids {
		st := statuses[id]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			id, st.Status, st.Version, st.InstanceID, strings.Join(st.Capabilities, ","))
	}
	return tw.Flush()
}

// runHistory prints persisted metrics snapshots. It needs the metrics
// store but never starts an agent.
func runHistory(args []string) error {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.MetricsStore.Enabled {
		return fmt.Errorf("metrics_store is disabled")
	}
	mcfg, err := managerConfig(cfg)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.MetricsStore)
	if err != nil {
		return fmt.Errorf("metrics store: %w", err)
	}
	defer store.Close()

	m, err := manager.New(mcfg, manager.Deps{Store: store, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if hasFlag(args, "prune") {
		n, err := m.PruneSnapshots(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d snapshot(s) older than %s\n", n, mcfg.SnapshotRetention)
		return nil
	}

	limit := 10
	if v := flagValue(args, "limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("--limit: %w", err)
		}
	}
	ids := domain.AllAgents
	if v := flagValue(args, "agent"); v != "" {
		id, err := parseAgentID(v)
		if err != nil {
			return err
		}
		ids = []domain.AgentID{id}
	}

	var rows []domain.MetricsSnapshot
	for _, id := range ids {
		snaps, err := m.MetricsHistory(ctx, id, limit)
		if err != nil {
			return err
		}
		rows = append(rows, snaps...)
	}
	return printHistory(os.Stdout, rows)
}

func printHistory(w io.Writer, rows []domain.MetricsSnapshot) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no snapshots recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAKEN AT\tAGENT\tTASKS\tSUCCESS RATE\tAVG MS\tRESTARTS")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.1f\t%d\n",
			s.TakenAt.Local().Format(time.DateTime), s.Metrics.AgentID,
			s.Metrics.TasksProcessed, s.Metrics.SuccessRate,
			s.Metrics.AverageResponseTimeMs, s.Metrics.Restarts)
	}
	return tw.Flush()
}

// printRuntime shows the background loops and how many events of each
// type the bus has delivered.
func printRuntime(w io.Writer, tasks []scheduling.TaskInfo, events map[domain.EventType]int64) {
	faint := color.New(color.Faint)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Background loops:")
	for _, t := range tasks {
		next := "-"
		if !t.NextRun.IsZero() {
			next = t.NextRun.Local().Format(time.TimeOnly)
		}
		fmt.Fprintf(w, "  %-20s next %s\n", t.Name, faint.Sprint(next))
	}

	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w, "Events:")
	for _, et := range slices.Sorted(maps.Keys(events)) {
		fmt.Fprintf(w, "  %-20s %d\n", et, events[et])
	}
}
