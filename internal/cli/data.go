package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stock-pattern/internal/marketdata"
	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

// addDataCommands adds bar history commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Bar history tools",
		Long:  "Fetch bar history from the configured provider and export it to csv or parquet snapshots.",
	}
	cmd.AddCommand(newDataFetchCmd(app))
	cmd.AddCommand(newDataExportCmd(app))
	rootCmd.AddCommand(cmd)
}

func newDataFetchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <ticker>",
		Short: "Show recent bars for a ticker",
		Example: `  stockpattern data fetch AAPL
  stockpattern data fetch MSFT --bars 120 --limit 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ticker := strings.ToUpper(strings.TrimSpace(args[0]))
			bars, _ := cmd.Flags().GetInt("bars")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := commandContext(app.Config.Data.Timeout * 2)
			defer cancel()

			provider, err := app.Provider(ctx)
			if err != nil {
				output.Error("Failed to build provider: %v", err)
				return err
			}

			to := time.Now()
			from := utils.ScanStartDate(to, bars)
			history, err := provider.FetchBars(ctx, ticker, from, to)
			if err != nil {
				output.Error("Failed to fetch %s: %v", ticker, err)
				return err
			}

			shown := history
			if limit > 0 && len(shown) > limit {
				shown = shown[len(shown)-limit:]
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"ticker":   ticker,
					"provider": provider.Name(),
					"from":     from.Format(time.RFC3339),
					"to":       to.Format(time.RFC3339),
					"count":    len(history),
					"bars":     shown,
				})
			}
			output.Bold("%s - %s", ticker, provider.Name())
			output.Printf("  %d bars, showing %d\n\n", len(history), len(shown))
			displayBars(output, shown)
			return nil
		},
	}
	cmd.Flags().Int("bars", 150, "trading days of history to request")
	cmd.Flags().IntP("limit", "l", 20, "bars to display (0 for all)")
	return cmd
}

func displayBars(output *Output, bars []models.Bar) {
	table := NewTable(output, "Date", "Open", "High", "Low", "Close", "Volume", "Change")
	table.AlignRight(2, 3, 4, 5, 6, 7)
	for i, b := range bars {
		change := "-"
		if i > 0 && bars[i-1].Close != 0 {
			change = output.FormatPercent((b.Close - bars[i-1].Close) / bars[i-1].Close * 100)
		}
		table.AddRow(
			FormatDate(b.Date),
			FormatPrice(b.Open),
			output.Green(FormatPrice(b.High)),
			output.Red(FormatPrice(b.Low)),
			FormatPrice(b.Close),
			utils.FormatVolume(b.Volume),
			change,
		)
	}
	table.Render()
}

func newDataExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [TICKER...]",
		Short: "Write bar snapshots for offline scans",
		Long: `Fetch bars from the configured API provider and write one snapshot per
ticker to <dir>/<TICKER>.<format>. Set data.provider to csv or parquet to
scan the snapshots later without network access.`,
		Example: `  stockpattern data export AAPL MSFT --format parquet
  stockpattern data export --set nasdaq --dir ./bars`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			tickers, err := scanTickersFromFlags(cmd, args, app.Config)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = app.Config.Data.Dir
			}
			bars, _ := cmd.Flags().GetInt("bars")

			sink, err := marketdata.NewFileProvider(dir, format)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if !isAPIProvider(app.Config.Data.Provider) {
				err := fmt.Errorf("data.provider is %s; export needs alphavantage or polygon", app.Config.Data.Provider)
				output.Error("%v", err)
				return err
			}

			ctx, cancel := commandContext(app.Config.Server.ScanTimeout)
			defer cancel()
			provider, err := app.Provider(ctx)
			if err != nil {
				output.Error("Failed to build provider: %v", err)
				return err
			}

			to := time.Now()
			from := utils.ScanStartDate(to, bars)
			type exported struct {
				Ticker string `json:"ticker"`
				Path   string `json:"path,omitempty"`
				Bars   int    `json:"bars"`
				Error  string `json:"error,omitempty"`
			}
			results := make([]exported, 0, len(tickers))
			failed := 0
			for _, ticker := range tickers {
				history, err := provider.FetchBars(ctx, ticker, from, to)
				if err == nil {
					err = sink.Save(ticker, history)
				}
				if err != nil {
					failed++
					app.Logger.Warn().Err(err).Str("ticker", ticker).Msg("Export failed")
					results = append(results, exported{Ticker: ticker, Error: err.Error()})
					continue
				}
				results = append(results, exported{Ticker: ticker, Path: sink.Path(ticker), Bars: len(history)})
			}

			if output.IsJSON() {
				if err := output.JSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Error != "" {
						output.Error("✗ %-6s %s", r.Ticker, r.Error)
						continue
					}
					output.Success("✓ %-6s %d bars -> %s", r.Ticker, r.Bars, r.Path)
				}
			}
			if len(tickers) > 0 && failed == len(tickers) {
				return fmt.Errorf("export failed for all %d tickers", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("tickers", nil, "comma-separated tickers")
	cmd.Flags().String("set", "", "named ticker set (stocks, nasdaq)")
	cmd.Flags().String("format", "csv", "snapshot format (csv, parquet)")
	cmd.Flags().String("dir", "", "output directory (default: data.dir)")
	cmd.Flags().Int("bars", 300, "trading days of history to request")
	return cmd
}
