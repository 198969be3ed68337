package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/statsval/pkg/client"
	"github.com/charlie0129/statsval/pkg/events"
	"github.com/charlie0129/statsval/pkg/types"
	"github.com/charlie0129/statsval/pkg/validation"
	"github.com/charlie0129/statsval/pkg/version"
)

var apiClient = client.NewClient(unixSocketPath)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
			daemonVersion, err := apiClient.GetVersion()
			if err != nil {
				logrus.Debugf("failed to get daemon version: %v", err)
				return
			}
			cmd.Printf("daemon: %s\n", daemonVersion)
			if daemonVersion != version.Version {
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": daemonVersion,
				}).Warn("Version mismatch between client and daemon. Restart the daemon after upgrading.")
			}
		},
	}
}

func NewTriggerCommand() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:     "trigger [check...]",
		Short:   "Start a validation run in the daemon",
		GroupID: gDaemon,
		Long: `Start a validation run in the daemon.

With no arguments every check runs. The run continues in the background;
use --follow to print results as they finish, or 'statsval results' later.`,
		ValidArgsFunction: completeChecks,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Subscribe first so no event of the new run is missed.
			var ch <-chan events.Event
			if follow {
				var err error
				ch, err = apiClient.SubscribeEvents(ctx)
				if err != nil {
					return err
				}
			}

			id, err := apiClient.TriggerRun(args)
			if err != nil {
				return err
			}
			logrus.Infof("started run %s", id)
			if !follow {
				return nil
			}

			return followRun(ctx, cmd, ch, id)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "wait for the run and print results as they finish")

	return cmd
}

// followRun prints check results of run id until it finishes. It fails if
// the run did not pass.
func followRun(ctx context.Context, cmd *cobra.Command, ch <-chan events.Event, id string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return errors.New("event stream closed before the run finished")
			}
			switch ev.Name {
			case events.CheckFinished:
				e, err := events.DecodeAs[events.CheckFinishedEvent](ev)
				if err != nil || e.RunID != id {
					continue
				}
				printResult(cmd, resultFromEvent(e))
			case events.RunFinished:
				e, err := events.DecodeAs[events.RunFinishedEvent](ev)
				if err != nil || e.RunID != id {
					continue
				}
				run, err := apiClient.GetRun(id)
				if err != nil {
					return err
				}
				printSummary(cmd, run.Devices)
				if !e.Passed {
					return fmt.Errorf("run %s %s", id, run.State)
				}
				return nil
			}
		}
	}
}

func resultFromEvent(e events.CheckFinishedEvent) validation.Result {
	end := time.Unix(e.Ts, 0)
	r := validation.Result{
		Check:   e.Check,
		Serial:  e.Serial,
		Status:  validation.Status(e.Status),
		Message: e.Message,
		Start:   end.Add(-time.Duration(e.DurationMs) * time.Millisecond),
		End:     end,
	}
	if e.Statsd != 0 || e.BatteryStats != 0 {
		r.Measurement = &validation.Measurement{Statsd: e.Statsd, BatteryStats: e.BatteryStats}
	}
	return r
}

func NewResultsCommand() *cobra.Command {
	var (
		id         string
		all        bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "results",
		Short:   "Show results of daemon runs",
		GroupID: gDaemon,
		Long: `Show results of daemon runs.

Without flags the latest run is shown, including a run still in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				runs, err := apiClient.GetRuns()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				if len(runs) == 0 {
					cmd.Println("No runs yet.")
					return nil
				}
				for _, r := range runs {
					printRunLine(cmd, r)
				}
				return nil
			}

			run, err := apiClient.GetRun(id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), run)
			}
			printRun(cmd, run)
			if run.State == types.RunFailed || run.State == types.RunErrored {
				return fmt.Errorf("run %s %s", run.ID, run.State)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&id, "id", "", "run id to show")
	f.BoolVarP(&all, "all", "a", false, "list every run in the history")
	f.BoolVar(&jsonOutput, "json", false, "print as JSON")

	return cmd
}

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Stream daemon events",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.SubscribeEvents(ctx)
			if err != nil {
				return err
			}
			logrus.Info("waiting for events, press Ctrl-C to stop")
			for ev := range ch {
				printEvent(cmd, ev)
			}
			if ctx.Err() == nil {
				return errors.New("event stream closed by the daemon")
			}
			return nil
		},
	}
}

func printEvent(cmd *cobra.Command, ev events.Event) {
	ts := time.Now().Format(time.Kitchen)
	switch ev.Name {
	case events.RunStarted:
		e, err := events.DecodeAs[events.RunStartedEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s %s %s (%s) checks=%v devices=%v\n", ts, bold("run.started"), e.RunID, e.Trigger, e.Checks, e.Serials)
		return
	case events.CheckFinished:
		e, err := events.DecodeAs[events.CheckFinishedEvent](ev)
		if err != nil {
			break
		}
		cmd.Printf("%s %s %s ", ts, bold("check.finished"), e.RunID)
		printResult(cmd, resultFromEvent(e))
		return
	case events.RunFinished:
		e, err := events.DecodeAs[events.RunFinishedEvent](ev)
		if err != nil {
			break
		}
		state := types.RunPassed
		if !e.Passed {
			state = types.RunFailed
		}
		cmd.Printf("%s %s %s %s %v\n", ts, bold("run.finished"), e.RunID, runStateText(state), e.Counts)
		if e.Error != "" {
			cmd.Printf("      %s\n", e.Error)
		}
		return
	}
	cmd.Printf("%s %s %s\n", ts, bold("%s", ev.Name), string(ev.Data))
}
