package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"stock-pattern/internal/api"
	"stock-pattern/internal/scanner"
	"stock-pattern/pkg/utils"
)

func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled scan",
		Long: `Serve the setup API and run a scan of the configured tickers on the
scan.schedule cron expression, evaluated in US market time.`,
		Example: `  stockpattern serve
  stockpattern serve --addr :9090 --no-schedule`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.Server.Addr
			}
			noSchedule, _ := cmd.Flags().GetBool("no-schedule")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc, err := app.Scanner(ctx, app.Notifier(output, false))
			if err != nil {
				output.Error("Failed to start scanner: %v", err)
				return err
			}
			st, err := app.Store()
			if err != nil {
				return err
			}

			if !noSchedule && app.Config.Scan.Schedule != "" {
				c := cron.New(cron.WithLocation(utils.MarketLocation))
				_, err := c.AddFunc(app.Config.Scan.Schedule, func() {
					app.scheduledScan(ctx, sc)
				})
				if err != nil {
					output.Error("Invalid scan.schedule %q: %v", app.Config.Scan.Schedule, err)
					return err
				}
				c.Start()
				defer func() {
					<-c.Stop().Done()
				}()
				app.Logger.Info().Str("schedule", app.Config.Scan.Schedule).Msg("Scheduled scan enabled")
			}

			server := api.NewServer(app.Config.Server, sc, st, app.Config.ScanTickers(), app.Logger)
			if !output.IsJSON() {
				output.Info("Listening on %s", addr)
			}
			return server.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default: server.addr)")
	cmd.Flags().Bool("no-schedule", false, "serve the API without the cron scan")
	rootCmd.AddCommand(cmd)
}

func (a *App) scheduledScan(ctx context.Context, sc *scanner.Scanner) {
	now := time.Now().In(utils.MarketLocation)
	if !utils.IsTradingDay(now) {
		a.Logger.Debug().Time("now", now).Msg("Skipping scheduled scan on a non-trading day")
		return
	}
	scanCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ScanTimeout)
	defer cancel()

	res, err := sc.Run(scanCtx, scanner.Request{Tickers: a.Config.ScanTickers()})
	if err != nil {
		a.Logger.Error().Err(err).Msg("Scheduled scan failed")
		return
	}
	a.Logger.Info().
		Str("run_id", res.RunID).
		Int("setups", len(res.Setups)).
		Int("errors", len(res.Errors)).
		Msg("Scheduled scan finished")
}
