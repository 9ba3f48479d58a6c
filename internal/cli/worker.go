package cli

import (
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Control running watch workers",
}

var workerEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Resume paused workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WorkerSetEnabled(cmd.Context(), true)
	},
}

var workerDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Pause workers after their current watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WorkerSetEnabled(cmd.Context(), false)
	},
}

var workerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the worker pause toggle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().WorkerStatus(cmd.Context())
	},
}

func init() {
	workerCmd.AddCommand(workerEnableCmd)
	workerCmd.AddCommand(workerDisableCmd)
	workerCmd.AddCommand(workerStatusCmd)
}
