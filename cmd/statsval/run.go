package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/config"
	"github.com/charlie0129/statsval/pkg/validation"
	"github.com/charlie0129/statsval/pkg/version"
)

// runOutput is what `run --json` prints.
type runOutput struct {
	Version string                     `json:"version"`
	Passed  bool                       `json:"passed"`
	Devices []validation.DeviceResults `json:"devices"`
}

func completeChecks(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return validation.DefaultRegistry().Names(), cobra.ShellCompDirectiveNoFileComp
}

func NewRunCommand() *cobra.Command {
	var (
		jsonOutput bool
		serials    []string
	)

	cmd := &cobra.Command{
		Use:     "run [check...]",
		Short:   "Run checks on the connected devices",
		GroupID: gBasic,
		Long: `Run checks on the connected devices without the daemon.

With no arguments every check runs. Devices come from --serial, then the
config file, then the single device adb picks by default. Devices are
validated concurrently.`,
		Example: `  statsval run
  statsval run connectivity-state-change
  statsval run --serial emulator-5554 --serial R58M123ABC --json`,
		ValidArgsFunction: completeChecks,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := validation.DefaultRegistry()
			for _, name := range args {
				if _, ok := registry.Get(name); !ok {
					return fmt.Errorf("%w: %q, see 'statsval list'", validation.ErrUnknownCheck, name)
				}
			}

			conf, err := config.NewFile(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(serials) > 0 {
				conf.SetSerials(serials)
			}
			logrus.WithFields(conf.LogrusFields()).Debug("config loaded")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := adb.ExecRunner{}
			if err := validation.CheckDevicesReady(ctx, conf, runner); err != nil {
				return err
			}

			suites := validation.SuitesFrom(conf, runner, registry)
			if !jsonOutput {
				p := &resultPrinter{cmd: cmd}
				for _, s := range suites {
					s.Observe(p.Print)
				}
			}

			drs := validation.RunDevices(ctx, suites, args...)
			results := validation.Flatten(drs)
			passed := validation.AllPassed(results)
			for _, dr := range drs {
				if dr.Error != "" {
					passed = false
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), runOutput{
					Version: version.Version,
					Passed:  passed,
					Devices: drs,
				}); err != nil {
					return err
				}
			} else {
				printSummary(cmd, drs)
			}

			if ctx.Err() != nil {
				return fmt.Errorf("interrupted")
			}
			if !passed {
				return fmt.Errorf("not every check passed")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	f.StringArrayVarP(&serials, "serial", "s", nil, "device serial to validate, repeatable")

	return cmd
}

func NewListCommand() *cobra.Command {
	var fromDaemon bool

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List available checks",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checks := validation.DefaultRegistry().Checks()
			if fromDaemon {
				var err error
				checks, err = apiClient.GetChecks()
				if err != nil {
					return err
				}
			}
			for _, c := range checks {
				cmd.Printf("%s\n    %s\n", bold("%s", c.Name), c.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromDaemon, "daemon", false, "list the checks registered in the daemon")

	return cmd
}
