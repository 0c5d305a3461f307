package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"farewatch/internal/app"
)

var (
	alertFrom     string
	alertTo       string
	alertMaxPrice string
	alertCurrency string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage route price watches",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured watches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertsList(cmd.Context())
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a watch that fires when a route drops under a price",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().AlertsAdd(cmd.Context(), app.AlertAddOptions{
			Origin:      alertFrom,
			Destination: alertTo,
			MaxPrice:    alertMaxPrice,
			Currency:    alertCurrency,
		})
	},
}

var alertsDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Stop a watch from evaluating",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		return getApp().AlertsDisable(cmd.Context(), id)
	},
}

func init() {
	alertsAddCmd.Flags().StringVar(&alertFrom, "from", "", "Origin airport code")
	alertsAddCmd.Flags().StringVar(&alertTo, "to", "", "Destination airport code")
	alertsAddCmd.Flags().StringVar(&alertMaxPrice, "max-price", "", "Fire when the price drops to this amount or below")
	alertsAddCmd.Flags().StringVar(&alertCurrency, "currency", "", "Threshold currency (defaults to the canonical currency)")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsAddCmd)
	alertsCmd.AddCommand(alertsDisableCmd)
}
