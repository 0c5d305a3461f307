package cli

import (
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Watch configured booking pages and relay observed prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunAgent(cmd.Context())
	},
}
