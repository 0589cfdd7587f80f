package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/SUOKE2024/suoke-life-sub002/internal/domain"
	"github.com/SUOKE2024/suoke-life-sub002/internal/usecase/manager"
)

// inputLine is the JSON form of one stdin submission.
type inputLine struct {
	Message   string            `json:"message"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Channel   string            `json:"channel,omitempty"`
	Category  string            `json:"category,omitempty"`
	Extras    map[string]string `json:"extensions,omitempty"`
}

// requestDefaults fill the fields a line leaves empty. The run loop falls
// back to user "cli"; submit requires --user.
type requestDefaults struct {
	UserID    string
	SessionID string
	Channel   string
	Category  string
}

func defaultsFrom(args []string) requestDefaults {
	d := requestDefaults{
		UserID:    flagValue(args, "user"),
		SessionID: flagValue(args, "session"),
		Channel:   flagValue(args, "channel"),
		Category:  flagValue(args, "category"),
	}
	if d.UserID == "" {
		d.UserID = "cli"
	}
	if d.SessionID == "" {
		d.SessionID = uuid.NewString()
	}
	return d
}

// parseLine turns one input line into a request. Lines starting with '{'
// are decoded as JSON; anything else is the message text itself.
func parseLine(line string, d requestDefaults) (domain.TaskRequest, error) {
	in := inputLine{Message: line}
	if strings.HasPrefix(line, "{") {
		in = inputLine{}
		if err := json.Unmarshal([]byte(line), &in); err != nil {
			return domain.TaskRequest{}, fmt.Errorf("decode line: %w", err)
		}
	}
	req := domain.TaskRequest{
		Message:  in.Message,
		Category: firstNonEmpty(in.Category, d.Category),
		Context: domain.RequestContext{
			UserID:     firstNonEmpty(in.UserID, d.UserID),
			SessionID:  firstNonEmpty(in.SessionID, d.SessionID),
			Channel:    domain.Channel(firstNonEmpty(in.Channel, d.Channel)),
			Extensions: in.Extras,
		},
	}
	return req, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// processLines submits every non-blank line of r and writes one JSON
// result per line to w. Rejections are reported on the result and do not
// stop the loop.
func processLines(ctx context.Context, m *manager.Manager, r io.Reader, w io.Writer, d requestDefaults) (int, error) {
	enc := json.NewEncoder(w)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var n int
	for sc.Scan() {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		req, err := parseLine(line, d)
		if err != nil {
			var bad domain.TaskResult
			bad.SetError(err)
			if err := enc.Encode(bad); err != nil {
				return n, fmt.Errorf("write result: %w", err)
			}
			continue
		}
		res, _ := m.ProcessTask(ctx, req)
		if err := enc.Encode(res); err != nil {
			return n, fmt.Errorf("write result: %w", err)
		}
		n++
	}
	return n, sc.Err()
}

// runInteractive reads stdin until EOF or a signal, then prints the
// system overview.
func runInteractive(args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, args)
	if err != nil {
		return err
	}
	defer a.cleanup()

	if _, err := processLines(ctx, a.env.Manager, os.Stdin, os.Stdout, defaultsFrom(args)); err != nil && ctx.Err() == nil {
		return err
	}
	m := a.env.Manager
	asJSON := hasFlag(args, "json")
	if err := printOverview(os.Stdout, m.SystemOverview(context.WithoutCancel(ctx)), asJSON); err != nil {
		return err
	}
	if !asJSON {
		printRuntime(os.Stdout, m.ScheduledTasks(), a.env.Bus.Counts())
	}
	return nil
}

// runSubmit sends the positional arguments as one message.
func runSubmit(args []string) error {
	msg := strings.Join(positional(args, valuedFlags...), " ")
	if strings.TrimSpace(msg) == "" || flagValue(args, "user") == "" {
		return fmt.Errorf("usage: suoke-agents submit --user ID [--channel NAME] [--category NAME] MESSAGE")
	}

	ctx, cancel := signalContext()
	defer cancel()

	a, err := bootstrap(ctx, args)
	if err != nil {
		return err
	}
	defer a.cleanup()

	d := defaultsFrom(args)
	res, err := a.env.Manager.Submit(ctx, msg, domain.RequestContext{
		UserID:    d.UserID,
		SessionID: d.SessionID,
		Channel:   domain.Channel(d.Channel),
	}, d.Category)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		return encErr
	}
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("task failed: %s", res.Error)
	}
	return nil
}
