package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion API and alert evaluation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunServer(cmd.Context())
	},
}
