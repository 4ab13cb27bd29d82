package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/smuseq/pkg/client"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/smuseq.sock"
	configPath     = "/etc/smuseq.json"
)

var apiClient = client.NewClient(unixSocketPath)

var (
	gPrograms     = "Programs:"
	gInspection   = "Inspection:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gPrograms,
		gInspection,
		gAdvanced,
		gInstallation,
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
			TimestampFormat: time.StampMilli,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: smuseq daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'smuseq daemon', or run the program in-process with '--local'.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or start the daemon with '--always-allow-non-root-access'")
	case errors.Is(err, client.ErrChannelsBusy):
		fmt.Fprintln(os.Stderr, "\nError: another program owns one of the requested channels")
		fmt.Fprintln(os.Stderr, "Wait for it to finish, see 'smuseq runs'.")
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
		Use:   "smuseq",
		Short: "smuseq sequences bias, pulse and sweep programs on SMU/PMU channels",
		Long: `smuseq sequences bias, pulse and sweep programs on SMU/PMU channels.

Programs are validated against the channel limits before any hardware is
touched, and every channel a program drives is parked at 0 V when it ends.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			if cmd.Name() == "daemon" || local {
				return nil
			}
			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. Results may not match what this client expects.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "smuseq daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewMonitorCommand(),
		NewPulseCommand(),
		NewSweepCommand(),
		NewRunCommand(),
		NewChannelsCommand(),
		NewRunsCommand(),
		NewEventsCommand(),
		NewScheduleCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
