package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"farewatch/internal/app"
)

var (
	simVendor   string
	simOrigin   string
	simDest     string
	simDate     string
	simPrice    string
	simCurrency string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-observation",
	Short: "Push a synthetic observation through ingestion and evaluation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simOrigin == "" || simDest == "" || simPrice == "" {
			return errors.New("--from, --to and --price are required")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Vendor:      simVendor,
			Origin:      simOrigin,
			Destination: simDest,
			FlightDate:  simDate,
			Price:       simPrice,
			Currency:    simCurrency,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simVendor, "vendor", "BA", "Provider code for the synthetic observation")
	simulateCmd.Flags().StringVar(&simOrigin, "from", "", "Origin airport code")
	simulateCmd.Flags().StringVar(&simDest, "to", "", "Destination airport code")
	simulateCmd.Flags().StringVar(&simDate, "date", "", "Travel date (yyyy-mm-dd, optional)")
	simulateCmd.Flags().StringVar(&simPrice, "price", "", "Observed price")
	simulateCmd.Flags().StringVar(&simCurrency, "currency", "", "Price currency (defaults to the canonical currency)")
}
