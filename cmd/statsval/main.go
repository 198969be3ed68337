package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/statsval/pkg/adb"
	"github.com/charlie0129/statsval/pkg/client"
	"github.com/charlie0129/statsval/pkg/config"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/statsval.sock"
	configPath     = "/etc/statsval.json"
)

var (
	gBasic        = "Basic:"
	gDaemon       = "Daemon:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gDaemon,
		gAdvanced,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: statsval daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'statsval daemon', or use 'statsval run' to validate without the daemon.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	case errors.Is(err, client.ErrNotFound):
		fmt.Fprintln(os.Stderr, "\nError: not found")
		fmt.Fprintln(os.Stderr, "No such run. List finished runs with 'statsval results --all'.")
	case errors.Is(err, client.ErrBusy):
		fmt.Fprintln(os.Stderr, "\nError: a validation run is already in progress")
		fmt.Fprintln(os.Stderr, "Follow it with 'statsval events' and try again when it finishes.")
	case errors.Is(err, adb.ErrDeviceNotFound):
		fmt.Fprintln(os.Stderr, "\nError: no device found")
		fmt.Fprintln(os.Stderr, "  - Check 'adb devices' lists the device and it is authorized")
		fmt.Fprintln(os.Stderr, "  - Pass '--serial' when more than one device is connected")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statsval",
		Short: "statsval checks that statsd metrics agree with BatteryStats on Android devices",
		Long: `statsval checks that statsd metrics agree with BatteryStats on Android devices.

It drives one or more devices over adb, uploads statsd configs, runs a
workload and compares what statsd reports against the BatteryStats dump.
Checks run directly with 'statsval run', or on a schedule in the daemon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			apiClient = client.NewClient(unixSocketPath)

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "statsval daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewVersionCommand(),
		NewRunCommand(),
		NewListCommand(),
		NewDaemonCommand(),
		NewTriggerCommand(),
		NewResultsCommand(),
		NewEventsCommand(),
		NewScheduleCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
