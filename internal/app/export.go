package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"farewatch/internal/storage"
)

// Export renders a route's price history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	origin := strings.ToUpper(strings.TrimSpace(opts.Origin))
	destination := strings.ToUpper(strings.TrimSpace(opts.Destination))
	if origin == "" || destination == "" {
		return errors.New("--from-airport and --to-airport are required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -90)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	items, err := store.ListItineraryHistory(ctx, origin, destination, from, to)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.Logger.Info().Str("route", origin+"-"+destination).Msg("no itineraries found for export window")
		return nil
	}

	downsampled := downsampleItineraries(items, opts.MaxPoints)
	a.Logger.Info().Int("total", len(items)).Int("exported", len(downsampled)).Msg("exporting itineraries")

	if opts.CSVPath != "" {
		if err := writeItinerariesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeItinerariesPNG(opts.PNGPath, origin, destination, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleItineraries(items []storage.Itinerary, max int) []storage.Itinerary {
	if max <= 0 || len(items) <= max {
		return items
	}

	result := make([]storage.Itinerary, 0, max)
	step := float64(len(items)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(items) {
			idx = len(items) - 1
		}
		result = append(result, items[idx])
	}
	return result
}

func writeItinerariesCSV(path string, items []storage.Itinerary) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"updated_at", "origin", "destination", "flight_date", "provider", "price", "currency", "confidence", "deep_link"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, it := range items {
		date := ""
		if it.FlightDate != nil {
			date = it.FlightDate.Format("2006-01-02")
		}
		record := []string{
			it.UpdatedAt.Format(time.RFC3339),
			it.Origin,
			it.Destination,
			date,
			it.Provider,
			it.Price.String(),
			it.Currency,
			strconv.Itoa(it.Confidence),
			it.DeepLink,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeItinerariesPNG(path, origin, destination string, items []storage.Itinerary) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(items))
	prices := make([]float64, len(items))
	for i, it := range items {
		x[i] = it.UpdatedAt
		prices[i] = it.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		Title:  origin + " - " + destination,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Lowest observed",
				XValues: x,
				YValues: prices,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
