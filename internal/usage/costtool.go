package usage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"tools.zach/dev/keepwarm/internal/pricing"
)

// ///////////////////////////////////////////////
// External Cost Tool
// ///////////////////////////////////////////////

// SourceCostTool and SourceTranscripts label where a bucket's numbers came
// from.
const (
	SourceCostTool    = "ccusage"
	SourceTranscripts = "transcripts"
)

// DefaultToolTimeout bounds one invocation of the cost tool.
const DefaultToolTimeout = 10 * time.Second

// ErrToolDisabled is returned when no cost tool command is configured.
var ErrToolDisabled = errors.New("cost tool disabled")

// runFunc executes name with args and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// CostTool invokes an external usage reporter that prints JSON in the
// ccusage shape: {"daily":[{date, totalCost, modelBreakdowns:[...]}]} or
// {"monthly":[{month, ...}]}.
type CostTool struct {
	Command     string
	DailyArgs   []string
	MonthlyArgs []string
	Timeout     time.Duration
	Logger      *slog.Logger

	run runFunc
}

// NewCostTool returns a tool that runs command. An empty command disables
// it.
func NewCostTool(command string, dailyArgs, monthlyArgs []string) *CostTool {
	return &CostTool{
		Command:     command,
		DailyArgs:   dailyArgs,
		MonthlyArgs: monthlyArgs,
		Timeout:     DefaultToolTimeout,
		run:         runCommand,
	}
}

// Enabled reports whether a command is configured.
func (t *CostTool) Enabled() bool { return t != nil && t.Command != "" }

// Daily returns per-day buckets keyed YYYY-MM-DD.
func (t *CostTool) Daily(ctx context.Context, now time.Time) (map[string]Bucket, error) {
	return t.report(ctx, now, t.DailyArgs, "daily", "date")
}

// Monthly returns per-month buckets keyed YYYY-MM.
func (t *CostTool) Monthly(ctx context.Context, now time.Time) (map[string]Bucket, error) {
	return t.report(ctx, now, t.MonthlyArgs, "monthly", "month")
}

func (t *CostTool) report(ctx context.Context, now time.Time, args []string, listKey, dateKey string) (map[string]Bucket, error) {
	if !t.Enabled() {
		return nil, ErrToolDisabled
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := t.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, t.Command, args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", t.Command, strings.Join(args, " "), err)
	}
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("%s: output is not JSON", t.Command)
	}
	return parseReport(out, listKey, dateKey, now.UnixMilli()), nil
}

// parseReport converts the tool's JSON into buckets.
func parseReport(out []byte, listKey, dateKey string, updatedAt int64) map[string]Bucket {
	buckets := map[string]Bucket{}
	gjson.GetBytes(out, listKey).ForEach(func(_, entry gjson.Result) bool {
		key := entry.Get(dateKey).String()
		if key == "" {
			return true
		}
		b := Bucket{
			Models:    map[string]pricing.TokenCounts{},
			Source:    SourceCostTool,
			UpdatedAt: updatedAt,
		}
		if c := entry.Get("totalCost"); c.Exists() {
			v := c.Float()
			b.CostUSD = &v
		}
		entry.Get("modelBreakdowns").ForEach(func(_, m gjson.Result) bool {
			name := m.Get("modelName").String()
			if name == "" {
				return true
			}
			b.Models[name] = b.Models[name].Add(pricing.TokenCounts{
				InputTokens:      m.Get("inputTokens").Int(),
				OutputTokens:     m.Get("outputTokens").Int(),
				CacheReadTokens:  m.Get("cacheReadTokens").Int(),
				CacheWriteTokens: m.Get("cacheCreationTokens").Int(),
			})
			return true
		})
		buckets[key] = b
		return true
	})
	return buckets
}

// runCommand runs name and captures stdout. A missing binary or non-zero
// exit is an error; stderr is folded into the message.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}
