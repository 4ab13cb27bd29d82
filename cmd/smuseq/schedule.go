package main

import (
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule",
		Aliases: []string{"sch", "sched"},
		Short:   "Show scheduled programs",
		Long: `Show the programs the daemon runs on a cron schedule.

Schedules are declared in the daemon config file under "schedules"; send the
daemon SIGHUP after editing it.`,
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleShow(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show scheduled programs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScheduleShow(cmd)
			},
		},
		&cobra.Command{
			Use:   "skip [name]",
			Short: "Skip the next run of a schedule",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				info, err := apiClient.SkipSchedule(args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Skipped. Next run of %s: %s\n", info.Name, bold("%s", info.NextRun.Local().Format(time.DateTime)))
				return nil
			},
		},
	)

	return cmd
}

func runScheduleShow(cmd *cobra.Command) error {
	infos, err := apiClient.GetSchedules()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		cmd.Println("No programs are scheduled.")
		return nil
	}
	for _, s := range infos {
		cmd.Printf("%s  %s\n", bold("%s", s.Name), s.Program)
		cmd.Printf("  Cron: %s\n", s.Cron)
		cmd.Printf("  Next run: %s (in %s)\n", bold("%s", s.NextRun.Local().Format(time.DateTime)),
			time.Until(s.NextRun).Round(time.Second))
		cmd.Printf("  Active: %s\n", bool2Text(s.Running))
	}
	return nil
}
