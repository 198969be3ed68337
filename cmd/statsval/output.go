package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/statsval/pkg/types"
	"github.com/charlie0129/statsval/pkg/validation"
)

func statusText(s validation.Status) string {
	switch s {
	case validation.StatusPass:
		return color.GreenString("PASS")
	case validation.StatusFail:
		return color.RedString("FAIL")
	case validation.StatusSkip:
		return color.YellowString("SKIP")
	default:
		return color.New(color.Bold, color.FgRed).Sprint("ERROR")
	}
}

func runStateText(s types.RunState) string {
	switch s {
	case types.RunPassed:
		return color.GreenString(string(s))
	case types.RunFailed:
		return color.RedString(string(s))
	case types.RunErrored:
		return color.New(color.Bold, color.FgRed).Sprint(string(s))
	default:
		return color.CyanString(string(s))
	}
}

func serialName(serial string) string {
	if serial == "" {
		return "default device"
	}
	return serial
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

// resultPrinter prints results as checks finish. Devices run concurrently,
// so lines are serialized.
type resultPrinter struct {
	mu  sync.Mutex
	cmd *cobra.Command
}

func (p *resultPrinter) Print(r validation.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printResult(p.cmd, r)
}

func printResult(cmd *cobra.Command, r validation.Result) {
	cmd.Printf("%s  %-26s %s %s\n", statusText(r.Status), r.Check, serialName(r.Serial),
		color.HiBlackString("(%s)", r.Duration().Round(time.Millisecond)))
	if r.Measurement != nil {
		cmd.Printf("      statsd: %s  batterystats: %s\n",
			bold("%.3f", r.Measurement.Statsd), bold("%.3f", r.Measurement.BatteryStats))
	}
	if r.Message != "" {
		cmd.Printf("      %s\n", r.Message)
	}
}

func printSummary(cmd *cobra.Command, drs []validation.DeviceResults) {
	counts := map[validation.Status]int{}
	for _, r := range validation.Flatten(drs) {
		counts[r.Status]++
	}
	var parts []string
	for _, s := range []validation.Status{validation.StatusPass, validation.StatusFail, validation.StatusSkip, validation.StatusError} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], statusText(s)))
		}
	}
	cmd.Println()
	for _, dr := range drs {
		if dr.Error != "" {
			cmd.Printf("%s %s: %s\n", statusText(validation.StatusError), serialName(dr.Serial), dr.Error)
		}
	}
	if len(parts) == 0 {
		cmd.Println("No checks ran.")
		return
	}
	cmd.Println(strings.Join(parts, ", "))
}

func printRun(cmd *cobra.Command, run *types.Run) {
	cmd.Printf("Run %s (%s): %s\n", bold("%s", run.ID), run.Trigger, runStateText(run.State))
	cmd.Printf("  Started: %s\n", run.Start.Local().Format(time.DateTime))
	if run.End != nil {
		cmd.Printf("  Finished: %s (%s)\n", run.End.Local().Format(time.DateTime), run.End.Sub(run.Start).Round(time.Second))
	}
	if run.Error != "" {
		cmd.Printf("  Error: %s\n", run.Error)
	}
	cmd.Println()
	for _, dr := range run.Devices {
		for _, r := range dr.Results {
			printResult(cmd, r)
		}
	}
	if run.End != nil {
		printSummary(cmd, run.Devices)
	}
}

func printRunLine(cmd *cobra.Command, run types.Run) {
	counts := run.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	cmd.Printf("%s  %-8s %-8s %s  %s\n", run.ID, run.Trigger, runStateText(run.State),
		run.Start.Local().Format(time.DateTime), strings.Join(parts, ", "))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
