package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/statsval/pkg/types"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sched"},
		Short:   "Manage the validation schedule of the daemon",
		Long: `Manage the validation schedule of the daemon.

The schedule command can be used in multiple ways:
  statsval schedule 'minute hour day month weekday' Set schedule with cron expression
  statsval schedule disable                         Disable the schedule
  statsval schedule skip                            Skip next run
  statsval schedule postpone [duration]             Postpone next run
  statsval schedule show                            Show current schedule

Before each scheduled run the daemon waits until every configured device
is online.`,
		Example: `  statsval schedule '0 3 * * *'   (At 03:00 every day)
  statsval schedule '0 3 * * 1-5' (At 03:00 on weekdays)
  statsval schedule '@every 6h'   (Every 6 hours)`,
		GroupID: gDaemon,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no arguments, show the current schedule
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			// Otherwise, treat as a cron expression to set
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable the validation schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleDisable(cmd)
			},
		},
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled run",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleSkip(cmd)
			},
		},
		newSchedulePostponeCommand(),
		&cobra.Command{
			Use:   "show",
			Short: "Show the validation schedule and next run times",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleShow(cmd)
			},
		},
	)

	return cmd
}

func newSchedulePostponeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled run",
		Example: `  statsval schedule postpone      (Postpone by 1 hour)
  statsval schedule postpone 90m  (Postpone by 90 minutes)`,
		Long: `Postpone the next scheduled run by a duration, 1 hour by default.
The run cannot be pushed past the one after it; use skip for that.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			if _, err := apiClient.PostponeSchedule(d); err != nil {
				return err
			}
			cmd.Printf("Next run postponed by %s.\n", d)
			return nil
		},
	}
}

func printNextRuns(cmd *cobra.Command, st *types.ScheduleStatus) {
	runs := append([]time.Time{*st.NextRun}, st.Next...)
	cmd.Printf("Next %d run(s):\n", len(runs))
	for _, run := range runs {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	st, err := apiClient.SetSchedule(cronExpr)
	if err != nil {
		return err
	}
	cmd.Printf("Validation scheduled: %s\n", bold("%s", st.Cron))
	if st.NextRun != nil {
		printNextRuns(cmd, st)
	}
	return nil
}

func runScheduleDisable(cmd *cobra.Command) error {
	if _, err := apiClient.DisableSchedule(); err != nil {
		return err
	}
	cmd.Println("Validation schedule disabled.")
	return nil
}

func runScheduleSkip(cmd *cobra.Command) error {
	if _, err := apiClient.SkipSchedule(); err != nil {
		return err
	}
	cmd.Println("Next scheduled run skipped.")
	return runScheduleShow(cmd)
}

func runScheduleShow(cmd *cobra.Command) error {
	st, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if !st.Enabled || st.NextRun == nil {
		cmd.Println("Validation schedule is not set.")
		return nil
	}
	cmd.Printf("Schedule: %s\n", bold("%s", st.Cron))
	printNextRuns(cmd, st)
	return nil
}
