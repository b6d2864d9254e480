package pricing

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// Pricing Page Extraction
// ///////////////////////////////////////////////

var (
	rowRe   = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	cellRe  = regexp.MustCompile(`(?is)<t[dh][^>]*>(.*?)</t[dh]>`)
	tagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	priceRe = regexp.MustCompile(`\$\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*MTok`)
	nameRe  = regexp.MustCompile(`(?i)^claude\s+(opus|sonnet|haiku)\s+([0-9]+(?:\.[0-9]+)?)`)
)

// ExtractRates pulls model rows out of the model pricing table on the public
// pricing page. A row is recognised when its first cell names a Claude model
// and the next five cells read "$X / MTok": base input, 5-minute cache write,
// 1-hour cache write, cache hit, output. Each row becomes a wildcard key
// such as "claude-opus-4-1*" or, for 3.x models, "claude-3-7-sonnet*".
func ExtractRates(page string) map[string]ModelRates {
	out := map[string]ModelRates{}
	for _, row := range rowRe.FindAllStringSubmatch(page, -1) {
		cells := cellTexts(row[1])
		if len(cells) < 6 {
			continue
		}
		key, ok := modelKey(cells[0])
		if !ok {
			continue
		}
		var prices [5]float64
		valid := true
		for i := range prices {
			p, ok := parsePrice(cells[i+1])
			if !ok {
				valid = false
				break
			}
			prices[i] = p
		}
		if !valid {
			continue
		}
		out[key] = ModelRates{
			Input:        prices[0],
			CacheWrite5m: ptr(prices[1]),
			CacheWrite1h: ptr(prices[2]),
			CacheRead:    ptr(prices[3]),
			Output:       prices[4],
		}
	}
	return out
}

func cellTexts(row string) []string {
	var cells []string
	for _, m := range cellRe.FindAllStringSubmatch(row, -1) {
		text := html.UnescapeString(tagRe.ReplaceAllString(m[1], " "))
		cells = append(cells, strings.Join(strings.Fields(text), " "))
	}
	return cells
}

// modelKey maps a display name ("Claude Sonnet 3.7 (deprecated)") to a
// wildcard key.
func modelKey(name string) (string, bool) {
	m := nameRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return "", false
	}
	family := strings.ToLower(m[1])
	version := strings.ReplaceAll(m[2], ".", "-")
	major, _, _ := strings.Cut(m[2], ".")
	if n, err := strconv.Atoi(major); err == nil && n < 4 {
		return "claude-" + version + "-" + family + "*", true
	}
	return "claude-" + family + "-" + version + "*", true
}

func parsePrice(cell string) (float64, bool) {
	m := priceRe.FindStringSubmatch(cell)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	return v, err == nil
}

func ptr(v float64) *float64 { return &v }
