package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/statsval/pkg/daemon"
	"github.com/charlie0129/statsval/pkg/version"
)

var (
	// allowNonRootAccess indicates whether to allow non-root users to access the statsval daemon.
	allowNonRootAccess = false
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run statsval daemon in the foreground",
		GroupID: gDaemon,
		Long: `Run statsval daemon in the foreground.

The daemon serves an HTTP API on a unix socket, runs checks on the
configured cron schedule and keeps the history of recent runs. Send SIGHUP
to reload the config file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("statsval daemon starting")
			return daemon.Run(configPath, unixSocketPath, allowNonRootAccess)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&allowNonRootAccess, "allow-non-root-access", false,
		"Allow non-root users to access the daemon.")

	return cmd
}
