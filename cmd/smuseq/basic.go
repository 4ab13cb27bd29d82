package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/charlie0129/smuseq/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewChannelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "channels",
		Short:   "List the configured channels and their limits",
		GroupID: gInspection,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := apiClient.GetChannels()
			if err != nil {
				return fmt.Errorf("failed to get channels: %w", err)
			}
			for i, ch := range infos {
				if i > 0 {
					cmd.Println()
				}
				printChannel(cmd, ch)
			}
			return nil
		},
	}
}

func NewRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runs [id]",
		Short:   "List recent program runs, or show one in full",
		GroupID: gInspection,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				run, err := apiClient.GetRun(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					b, err := json.MarshalIndent(run, "", "  ")
					if err != nil {
						return err
					}
					cmd.Println(string(b))
					return nil
				}
				printRun(cmd, run)
				return nil
			}

			runs, err := apiClient.GetRuns()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Println("No runs recorded yet.")
				return nil
			}
			for _, r := range runs {
				cmd.Printf("%s  %s  %-8s %-20v %s\n",
					r.StartedAt.Format("15:04:05.000"), r.ID, r.Kind, r.Channels, code2Text(r.Code))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the run record as JSON")

	return cmd
}
