package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/netvoice/tracker/internal/cli"
)

func main() {
	command := NewTrackerCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func NewTrackerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker [flags] [options]",
		Short: "tracker follows voice-initiated network-change operations.",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(1)
		},
	}
	cmd.AddCommand(cli.NewCmdWatch())
	cmd.AddCommand(cli.NewCmdGet())
	cmd.AddCommand(cli.NewCmdStart())
	cmd.AddCommand(cli.NewCmdAdvance())
	cmd.AddCommand(cli.NewCmdApprove())
	cmd.AddCommand(cli.NewCmdRollback())
	cmd.AddCommand(cli.NewCmdVersion())

	return cmd
}
