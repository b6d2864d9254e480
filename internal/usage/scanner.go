package usage

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/tidwall/gjson"
	"tools.zach/dev/keepwarm/internal/logger"
	"tools.zach/dev/keepwarm/internal/pricing"
	"tools.zach/dev/keepwarm/internal/transcript"
)

// ///////////////////////////////////////////////
// Transcript Token Scan
// ///////////////////////////////////////////////

// DailyUsage maps a local day key (YYYY-MM-DD) to token counts per model.
type DailyUsage map[string]map[string]pricing.TokenCounts

// add accumulates counts for model on day.
func (d DailyUsage) add(day, model string, c pricing.TokenCounts) {
	models, ok := d[day]
	if !ok {
		models = map[string]pricing.TokenCounts{}
		d[day] = models
	}
	models[model] = models[model].Add(c)
}

// Sum merges every day whose key starts with prefix ("2025-06" for a
// month) into one per-model map.
func (d DailyUsage) Sum(prefix string) map[string]pricing.TokenCounts {
	out := map[string]pricing.TokenCounts{}
	for day, models := range d {
		if len(day) < len(prefix) || day[:len(prefix)] != prefix {
			continue
		}
		for m, c := range models {
			out[m] = out[m].Add(c)
		}
	}
	return out
}

// syntheticModel marks locally generated placeholder replies that were never
// billed.
const syntheticModel = "<synthetic>"

// Scanner reads assistant usage records out of transcript files.
type Scanner struct {
	Dirs    []string
	Depth   int
	Locator transcript.Locator
	Logger  *slog.Logger
}

// Scan collects token usage recorded at or after since from every
// transcript modified since then. Records are grouped by day in since's
// location. A response logged more than once (same message id and request
// id) is counted once.
func (s *Scanner) Scan(ctx context.Context, since time.Time) (DailyUsage, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	var files []string
	s.Locator.Walk(s.Dirs, s.Depth, func(c transcript.Candidate) {
		if !c.ModTime.Before(since) {
			files = append(files, c.Path)
		}
	})

	out := DailyUsage{}
	seen := map[string]struct{}{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		n, err := scanFile(path, since, out, seen)
		if err != nil {
			log.Debug("transcript scan failed", "path", path, "error", err)
			continue
		}
		logger.Trace(log, "scanned transcript", "path", path, "records", n)
	}
	log.Debug("usage scan complete", "files", len(files), "days", len(out))
	return out, nil
}

func scanFile(path string, since time.Time, out DailyUsage, seen map[string]struct{}) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	records := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		r := gjson.GetManyBytes(line, "message.usage", "message.model", "message.id", "requestId", "timestamp")
		u, model, msgID, reqID, ts := r[0], r[1].String(), r[2].String(), r[3].String(), r[4]
		if !u.IsObject() || model == "" || model == syntheticModel {
			continue
		}
		at, ok := transcript.ParseTimestamp(ts)
		if !ok || at.Before(since) {
			continue
		}
		if msgID != "" || reqID != "" {
			key := msgID + "\x00" + reqID
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}

		out.add(at.In(since.Location()).Format(DayLayout), model, pricing.TokenCounts{
			InputTokens:      u.Get("input_tokens").Int(),
			OutputTokens:     u.Get("output_tokens").Int(),
			CacheReadTokens:  u.Get("cache_read_input_tokens").Int(),
			CacheWriteTokens: u.Get("cache_creation_input_tokens").Int(),
		})
		records++
	}
	return records, sc.Err()
}
