package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/infra/config"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/multiagent"
)

func printOverview(w io.Writer, ov domain.OverviewSnapshot, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ov)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "System overview")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	health := green.Sprint("healthy")
	if !ov.IsHealthy {
		health = red.Sprint("degraded")
	}
	fmt.Fprintf(w, "  Status:        %s\n", health)
	fmt.Fprintf(w, "  Agents:        %d active / %d total\n", ov.ActiveAgents, ov.TotalAgents)
	fmt.Fprintf(w, "  Tasks:         %d (%d ok, %d failed)\n", ov.TotalTasks, ov.TotalSuccess, ov.TotalErrors)
	fmt.Fprintf(w, "  Success rate:  %.1f%%\n", ov.AverageSuccessRate*100)
	fmt.Fprintf(w, "  In flight:     %d\n", ov.InFlightTasks)
	fmt.Fprintf(w, "  Uptime:        %dms\n", ov.UptimeMs)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSTATUS\tTASKS\tERRORS\tAVG MS\tRESTARTS")
	ids := make([]domain.AgentID, 0, len(ov.Statuses))
	for id := range ov.Statuses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		st := ov.Statuses[id]
		am := ov.Agents[id]
		var status string
		switch {
		case st.Status.Ready() && st.Healthy:
			status = green.Sprint(st.Status)
		case st.RestartPending:
			status = yellow.Sprint(st.Status)
		default:
			status = red.Sprint(st.Status)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f\t%d\n",
			id, status, am.TasksProcessed, am.ErrorCount, am.AverageResponseTimeMs, am.Restarts)
	}
	return tw.Flush()
}

func printCatalog(w io.Writer, c *multiagent.Catalog) error {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "%d collaboration strategies\n\n", c.Len())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tMODE\tPRIMARY\tSUPPORTING")
	for _, cat := range c.Categories() {
		s, _ := c.Resolve(cat)
		supporting := make([]string, 0, len(s.Supporting))
		for _, id := range s.Supporting {
			supporting = append(supporting, string(id))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Category, s.Mode, s.Primary, strings.Join(supporting, ","))
	}
	return tw.Flush()
}

// runCatalog prints the effective catalog without starting any agent.
func runCatalog(args []string) error {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	mcfg, err := managerConfig(cfg)
	if err != nil {
		return err
	}
	layers := [][]domain.CollaborationStrategy{multiagent.DefaultStrategies(), mcfg.Strategies}
	c, err := multiagent.NewCatalog(layers...)
	if err != nil {
		return err
	}
	if hasFlag(args, "json") {
		out := make([]domain.CollaborationStrategy, 0, c.Len())
		for _, cat := range c.Categories() {
			s, _ := c.Resolve(cat)
			out = append(out, s)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printCatalog(os.Stdout, c)
}
