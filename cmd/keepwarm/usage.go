package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"tools.zach/dev/keepwarm/internal/usage"
)

// ///////////////////////////////////////////////
// usage
// ///////////////////////////////////////////////

func newUsageCmd(g *globalFlags) *cobra.Command {
	var (
		refresh bool
		asJSON  bool
		days    int
	)
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print the daily and monthly cost history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(g, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			cacheFor := time.Duration(-1)
			if refresh {
				cacheFor = 0
			}
			h := a.aggregator(cacheFor).Refresh(cmd.Context(), time.Now())

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(h)
			}
			return printHistory(cmd.OutOrStdout(), h, days)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cost cache and recompute")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw history as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "number of most recent days to print")
	return cmd
}

// printHistory writes the most recent days and all months, newest first.
func printHistory(w io.Writer, h *usage.History, days int) error {
	var b strings.Builder
	section := func(title string, series map[string]usage.Bucket, limit int) {
		keys := lo.Keys(series)
		slices.Sort(keys)
		slices.Reverse(keys)
		if limit > 0 && len(keys) > limit {
			keys = keys[:limit]
		}
		fmt.Fprintf(&b, "%s\n", title)
		if len(keys) == 0 {
			b.WriteString("  (none)\n")
			return
		}
		for _, k := range keys {
			bucket := series[k]
			cost := "n/a"
			if bucket.CostUSD != nil {
				cost = fmt.Sprintf("$%.2f", *bucket.CostUSD)
			}
			fmt.Fprintf(&b, "  %-10s %10s %14d tok  %s", k, cost, bucket.Tokens(), bucket.Source)
			if len(bucket.MissingPricing) > 0 {
				fmt.Fprintf(&b, "  (no pricing: %s)", strings.Join(bucket.MissingPricing, ", "))
			}
			b.WriteString("\n")
		}
	}
	section("Daily", h.Daily, days)
	section("Monthly", h.Monthly, 0)
	if h.LastUpdated > 0 {
		fmt.Fprintf(&b, "Updated %s\n", time.UnixMilli(h.LastUpdated).Format(time.DateTime))
	}
	_, err := io.WriteString(w, b.String())
	return err
}
