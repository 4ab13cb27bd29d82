package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/smuseq/pkg/config"
	daemonutils "github.com/charlie0129/smuseq/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install smuseq daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Install smuseq daemon as a systemd service.

This makes smuseq run in the background and start on boot. You must run this command as root.

By default, only root is allowed to access the daemon. Use --allow-non-root-access to let other users run programs without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the smuseq daemon.")
			} else {
				logrus.Info("only root user is allowed to access the smuseq daemon.")
			}

			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()
			cmd.Printf("systemd will use the current binary (%s) at startup, so do not move it. If it moves, run 'smuseq install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the smuseq daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall smuseq daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Stop the smuseq daemon and remove its systemd service.

Stopping the daemon parks every channel at 0 V.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			logrus.Infof("successfully uninstalled smuseq daemon")
			logrus.Infof("your config is kept in %s, remove it yourself if needed", configPath)

			return nil
		},
	}
}
