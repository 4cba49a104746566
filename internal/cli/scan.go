package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stock-pattern/internal/config"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/internal/scanner"
	"stock-pattern/pkg/utils"
)

func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [TICKER...]",
		Short: "Scan tickers for wedge, pennant and flag setups",
		Long: `Fetch bar history for each ticker, run the detector and store any new
setups. Dates that already have a stored setup are skipped.

Tickers come from the arguments, --tickers, --set or the configured scan list,
in that order.`,
		Example: `  stockpattern scan AAPL MSFT
  stockpattern scan --set nasdaq --lookback 12
  stockpattern scan --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			tickers, err := scanTickersFromFlags(cmd, args, app.Config)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			lookback, _ := cmd.Flags().GetInt("lookback")
			if lookback < 0 {
				err := apperrors.NewValidationError("lookback", lookback, "must be positive")
				output.Error("%v", err)
				return err
			}
			quiet, _ := cmd.Flags().GetBool("quiet")

			ctx, cancel := commandContext(app.Config.Server.ScanTimeout)
			defer cancel()

			sc, err := app.Scanner(ctx, app.Notifier(output, !quiet))
			if err != nil {
				output.Error("Failed to start scan: %v", err)
				return err
			}

			if !output.IsJSON() {
				output.Dim("Scanning %d tickers with %s data...", len(tickers), app.Config.Data.Provider)
			}
			res, err := sc.Run(ctx, scanner.Request{Tickers: tickers, Lookback: lookback})
			if output.IsJSON() {
				if res != nil {
					if jerr := output.JSON(res); jerr != nil {
						return jerr
					}
				}
				return err
			}
			if err != nil && res == nil {
				output.Error("Scan failed: %v", err)
				return err
			}

			output.Println()
			if len(res.Setups) == 0 {
				output.Info("No new setups.")
			} else {
				output.Bold("New setups (%d)", len(res.Setups))
				renderSetups(output, res.Setups)
			}
			renderScanErrors(output, res.Errors)
			output.Dim("Run %s finished in %s", res.RunID, FormatDuration(res.Duration))
			return err
		},
	}

	cmd.Flags().StringSlice("tickers", nil, "comma-separated tickers to scan")
	cmd.Flags().String("set", "", "named ticker set (stocks, nasdaq)")
	cmd.Flags().Int("lookback", 0, "override the consolidation window in bars")
	cmd.Flags().BoolP("quiet", "q", false, "skip terminal notifications")

	return cmd
}

func scanTickersFromFlags(cmd *cobra.Command, args []string, cfg *config.Config) ([]string, error) {
	if len(args) > 0 {
		return utils.NormalizeTickers(args), nil
	}
	if tickers, _ := cmd.Flags().GetStringSlice("tickers"); len(tickers) > 0 {
		return utils.NormalizeTickers(tickers), nil
	}
	if set, _ := cmd.Flags().GetString("set"); set != "" {
		tickers, ok := config.TickerSets[set]
		if !ok {
			return nil, apperrors.NewValidationError("set", set, "must be one of "+strings.Join(config.TickerSetNames(), ", "))
		}
		return tickers, nil
	}
	return cfg.ScanTickers(), nil
}

func isLowRR(signal string) bool {
	return strings.HasSuffix(signal, "(Low RR)")
}

func renderSetups(output *Output, setups []models.Setup) {
	table := NewTable(output, "ID", "Ticker", "Date", "Signal", "Close", "Entry", "Stop", "Target", "R:R")
	table.AlignRight(1, 5, 6, 7, 8, 9)
	for _, s := range setups {
		table.AddRow(
			fmt.Sprintf("%d", s.ID),
			s.Ticker,
			FormatDate(s.Date),
			output.Signal(s.Signal, s.BrokeOut, isLowRR(s.Signal)),
			FormatPrice(s.Close),
			FormatPrice(s.BreakoutPrice),
			FormatPrice(s.StopLoss),
			FormatPrice(s.TakeProfit),
			FormatRiskReward(s.RewardToRisk),
		)
	}
	table.Render()
}

func renderScanErrors(output *Output, errs []error) {
	if len(errs) == 0 {
		return
	}
	output.Println()
	output.Warning("%d tickers failed", len(errs))
	for _, err := range errs {
		var scanErr *apperrors.ScanError
		if errors.As(err, &scanErr) {
			output.Printf("  %-6s %-8s %v\n", scanErr.Ticker, scanErr.Stage, scanErr.Err)
			continue
		}
		output.Printf("  %v\n", err)
	}
}
