package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/internal/reports"
	"stock-pattern/internal/store"
	"stock-pattern/pkg/utils"
)

func addSetupCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "setups",
		Short: "Review and finalize stored setups",
	}
	cmd.AddCommand(newSetupsListCmd(app))
	cmd.AddCommand(newSetupsShowCmd(app))
	cmd.AddCommand(newSetupsFinalizeCmd(app))
	rootCmd.AddCommand(cmd)
}

func newSetupsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored setups",
		Example: `  stockpattern setups list --open
  stockpattern setups list --ticker AAPL --from 2024-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			filter, err := setupFilterFromFlags(cmd)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			st, err := app.Store()
			if err != nil {
				output.Error("Failed to open store: %v", err)
				return err
			}
			ctx, cancel := commandContext(0)
			defer cancel()

			setups, err := st.GetSetups(ctx, filter)
			if err != nil {
				output.Error("Failed to load setups: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(setups)
			}
			if len(setups) == 0 {
				output.Info("No setups found.")
				return nil
			}
			renderSetups(output, setups)
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only this ticker")
	cmd.Flags().String("from", "", "setups on or after this date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "setups on or before this date (YYYY-MM-DD)")
	cmd.Flags().Bool("open", false, "only setups that are not finalized")
	cmd.Flags().Int("limit", 50, "maximum rows")
	return cmd
}

func setupFilterFromFlags(cmd *cobra.Command) (store.SetupFilter, error) {
	ticker, _ := cmd.Flags().GetString("ticker")
	open, _ := cmd.Flags().GetBool("open")
	limit, _ := cmd.Flags().GetInt("limit")
	filter := store.SetupFilter{
		Ticker:   strings.ToUpper(strings.TrimSpace(ticker)),
		OpenOnly: open,
		Limit:    limit,
	}
	var err error
	if filter.StartDate, err = dateFlag(cmd, "from"); err != nil {
		return filter, err
	}
	if filter.EndDate, err = dateFlag(cmd, "to"); err != nil {
		return filter, err
	}
	if !filter.EndDate.IsZero() {
		filter.EndDate = filter.EndDate.Add(24*time.Hour - time.Nanosecond)
	}
	return filter, nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, utils.MarketLocation)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(name, raw, "must be YYYY-MM-DD")
	}
	return t, nil
}

func parseIDArg(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("id", raw, "must be a positive integer")
	}
	return id, nil
}

func newSetupsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one setup in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id, err := parseIDArg(args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			st, err := app.Store()
			if err != nil {
				output.Error("Failed to open store: %v", err)
				return err
			}
			ctx, cancel := commandContext(0)
			defer cancel()

			setup, err := st.GetSetupByID(ctx, id)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(setup)
			}
			showSetup(output, setup)
			return nil
		},
	}
}

func showSetup(output *Output, s *models.Setup) {
	output.Bold("%s %s  #%d", s.Ticker, FormatDate(s.Date), s.ID)
	output.Printf("  Signal:      %s\n", output.Signal(s.Signal, s.BrokeOut, isLowRR(s.Signal)))
	output.Printf("  Bar:         close %s  high %s  low %s  vol %s\n",
		FormatPrice(s.Close), FormatPrice(s.High), FormatPrice(s.Low), utils.FormatVolume(s.Volume))
	output.Printf("  Volume MA:   %s\n", utils.FormatVolume(int64(s.VolMA)))
	output.Printf("  Channel:     high slope %.4f  low slope %.4f  compression %.2f\n", s.HighSlope, s.LowSlope, s.Compression)
	output.Printf("  ATR:         %.4f\n", s.SmoothedATR)
	output.Println()
	output.Printf("  Resistance:  %s\n", FormatPrice(s.ResistanceLevel))
	output.Printf("  Entry:       %s\n", FormatPrice(s.BreakoutPrice))
	output.Printf("  Stop:        %s  (risk %.4f)\n", FormatPrice(s.StopLoss), s.RiskPerShare)
	output.Printf("  Target:      %s  (reward %.4f)\n", FormatPrice(s.TakeProfit), s.RewardPerShare)
	output.Printf("  R:R:         %s\n", FormatRiskReward(s.RewardToRisk))
	status := "open"
	if s.IsFinalized {
		status = "finalized"
	}
	output.Dim("  Status: %s", status)
}

func newSetupsFinalizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize <id>",
		Short: "Record how a setup was resolved",
		Long: `Finalize a setup. Pass --sold-at when the setup was traded, or
--false-positive when the pattern did not play out. A setup can only be
finalized once.`,
		Example: `  stockpattern setups finalize 42 --sold-at 187.35
  stockpattern setups finalize 43 --false-positive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id, err := parseIDArg(args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			soldAt, _ := cmd.Flags().GetFloat64("sold-at")
			falsePositive, _ := cmd.Flags().GetBool("false-positive")

			result := &models.FinalResult{
				StockSetupID:    id,
				DateUpdated:     time.Now(),
				PriceSoldAt:     soldAt,
				IsActive:        soldAt > 0,
				IsFalsePositive: falsePositive,
			}

			st, err := app.Store()
			if err != nil {
				output.Error("Failed to open store: %v", err)
				return err
			}
			ctx, cancel := commandContext(0)
			defer cancel()

			if err := st.FinalizeSetup(ctx, result); err != nil {
				output.Error("Failed to finalize setup %d: %v", id, err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("✓ Setup %d finalized", id)
			if result.IsActive {
				setup, err := st.GetSetupByID(ctx, id)
				if err == nil {
					pct := reports.ReturnPct(setup.BreakoutPrice, soldAt)
					output.Printf("  Entry %s  exit %s  %s\n", FormatPrice(setup.BreakoutPrice), FormatPrice(soldAt), output.FormatPercent(pct))
				}
			}
			return nil
		},
	}
	cmd.Flags().Float64("sold-at", 0, "exit price for a traded setup")
	cmd.Flags().Bool("false-positive", false, "mark the setup as a false positive")
	return cmd
}

func addReportCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Trade result reports",
	}
	cmd.AddCommand(newReportResultsCmd(app))
	cmd.AddCommand(newReportSummaryCmd(app))
	rootCmd.AddCommand(cmd)
}

func loadFinalResults(app *App, cmd *cobra.Command) ([]reports.FinalResultRow, error) {
	ticker, _ := cmd.Flags().GetString("ticker")
	st, err := app.Store()
	if err != nil {
		return nil, err
	}
	ctx, cancel := commandContext(0)
	defer cancel()

	resolved, err := st.GetResolvedSetups(ctx, store.ResultFilter{
		Ticker:     strings.ToUpper(strings.TrimSpace(ticker)),
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return reports.FinalResults(resolved), nil
}

func newReportResultsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List traded setups with their returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := loadFinalResults(app, cmd)
			if err != nil {
				output.Error("Failed to build report: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Info("No traded setups yet.")
				return nil
			}
			table := NewTable(output, "Updated", "ID", "Ticker", "Signal", "Setup Date", "Entry", "Sold", "Return", "Day")
			table.AlignRight(2, 6, 7, 8)
			for _, r := range rows {
				day := output.Red(r.GreenOrRedDay)
				if r.GreenOrRedDay == reports.Green {
					day = output.Green(r.GreenOrRedDay)
				}
				table.AddRow(
					r.DateUpdated,
					fmt.Sprintf("%d", r.SetupID),
					r.Ticker,
					TruncateString(r.Signal, 28),
					FormatDate(r.SetupDate),
					FormatPrice(r.BreakoutPrice),
					FormatPrice(r.PriceSoldAt),
					output.FormatPercent(r.PercentageDifference),
					day,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only this ticker")
	return cmd
}

func newReportSummaryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate win rate and returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := loadFinalResults(app, cmd)
			if err != nil {
				output.Error("Failed to build report: %v", err)
				return err
			}
			summary := reports.Summarize(rows)
			if output.IsJSON() {
				return output.JSON(summary)
			}
			output.Bold("Results Summary")
			output.Printf("  Trades:        %d\n", summary.TotalTrades)
			output.Printf("  Green / Red:   %s / %s\n", output.Green(strconv.Itoa(summary.GreenCount)), output.Red(strconv.Itoa(summary.RedCount)))
			output.Printf("  Success rate:  %.2f%%\n", summary.SuccessRate)
			output.Printf("  Avg return:    %s\n", output.FormatPercent(summary.AvgReturnPct))
			output.Printf("  Best trade:    %s\n", output.FormatPercent(summary.BestTradePct))
			output.Printf("  Worst trade:   %s\n", output.FormatPercent(summary.WorstTradePct))
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "only this ticker")
	return cmd
}
