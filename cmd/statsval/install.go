package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/statsval/pkg/config"
	daemonutils "github.com/charlie0129/statsval/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install statsval daemon as a systemd service",
		GroupID: gDaemon,
		Long: `Install statsval daemon as a systemd service (system-wide).

This makes the daemon run in the background and start on boot, so scheduled
validations keep running. You must run this command as root.

By default, only root user is allowed to access the daemon. Use the
--allow-non-root-access flag to let other users trigger runs and read results
without sudo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the statsval daemon.")
			} else {
				logrus.Info("only root user is allowed to access the statsval daemon.")
			}

			// Save first so the daemon starts with the access setting.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %w", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use the current binary (%s) at startup, so do not move it. If it is moved or deleted, run `statsval install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access statsval daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall statsval daemon",
		GroupID: gDaemon,
		Long: `Uninstall statsval daemon from systemd (system-wide).

This stops the daemon and removes its unit. You must run this command as root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %w", err)
			}

			cmd.Println("successfully uninstalled")

			cmd.Printf("Your config and run history are kept in %s, in case you want to use `statsval' again.\n", configPath)

			return nil
		},
	}

	return cmd
}
