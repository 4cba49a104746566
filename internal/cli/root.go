package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stock-pattern/internal/analysis/patterns"
	"stock-pattern/internal/config"
	"stock-pattern/internal/logging"
)

// Version information
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// skipConfig marks commands that run without a loaded configuration.
const skipConfig = "skip-config"

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *App) {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "stockpattern",
		Short: "Wedge, pennant and flag setup scanner",
		Long: `stockpattern scans daily or intraday bars for bullish consolidation
patterns that follow an uptrend: wedges, pennants and flags with tapering
volume. Detected setups are stored with entry, stop, target and reward-to-risk,
and can be reviewed, finalized and reported on later.

Use 'stockpattern config init' to write a starter configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			app.ConfigDir = dir
			if cmd.Annotations[skipConfig] == "true" {
				return nil
			}
			return app.load(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/stock-pattern)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	addScanCommands(rootCmd, app)
	addSetupCommands(rootCmd, app)
	addReportCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd, app
}

func (a *App) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.ConfigDir)
	if errors.Is(err, config.ErrTemplateCreated) {
		output := NewOutput(cmd)
		output.Warning("Created a configuration template in %s", a.ConfigDir)
		output.Println("Edit config.toml and credentials.toml, then run the command again.")
		return err
	}
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging)

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	a.Logger.Debug().Str("config_dir", a.ConfigDir).Str("profile", cfg.Detector.Profile).Msg("Configuration loaded")
	return nil
}

// Execute runs the CLI and releases whatever the command opened.
func Execute() error {
	cmd, app := newRootCmd()
	err := cmd.Execute()
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("stockpattern v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "path",
		Short:       "Show configuration directory path",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
				return
			}
			output.Println(app.ConfigDir)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "init",
		Short:       "Write a starter config.toml",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path, err := config.WriteTemplate(app.ConfigDir)
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("✓ Wrote %s", path)
			output.Dim("Add API keys to %s", filepath.Join(app.ConfigDir, "credentials.toml"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "profiles",
		Short:       "List built-in detector profiles",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			profiles := patterns.Profiles()
			if output.IsJSON() {
				return output.JSON(profiles)
			}
			table := NewTable(output, "Profile", "Lookback", "Uptrend", "Vol Drop", "Vol CV", "Min R:R")
			for _, name := range patterns.ProfileNames() {
				p := profiles[name]
				table.AddRow(
					name,
					fmt.Sprintf("%d", p.Lookback),
					fmt.Sprintf("%d", p.UptrendLookback),
					fmt.Sprintf("%.2f", p.VolumeDropFactor),
					fmt.Sprintf("%.2f", p.VolumeCVMax),
					fmt.Sprintf("%.2f", p.MinRewardToRisk),
				)
			}
			table.Render()
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	p := cfg.Detector.Params
	output.Bold("Detector")
	output.Printf("  Profile:         %s\n", cfg.Detector.Profile)
	output.Printf("  Lookback:        %d bars (uptrend %d)\n", p.Lookback, p.UptrendLookback)
	output.Printf("  Min bars:        %d\n", p.MinBars())
	output.Printf("  Min R:R:         %.2f (%s)\n", p.MinRewardToRisk, p.LowRRPolicy)
	output.Printf("  Granularity:     %s\n", p.DateGranularity)
	output.Println()

	output.Bold("Scan")
	if len(cfg.Scan.Tickers) > 0 {
		output.Printf("  Tickers:         %d explicit\n", len(cfg.Scan.Tickers))
	} else {
		output.Printf("  Ticker set:      %s (%d)\n", cfg.Scan.TickerSet, len(cfg.ScanTickers()))
	}
	output.Printf("  Concurrency:     %d\n", cfg.Scan.Concurrency)
	output.Printf("  Schedule:        %s\n", cfg.Scan.Schedule)
	output.Printf("  Latest only:     %v\n", cfg.Scan.LatestOnly)
	output.Println()

	output.Bold("Data")
	output.Printf("  Provider:        %s (%s)\n", cfg.Data.Provider, cfg.Data.Interval)
	output.Printf("  Persist:         %v (max age %s)\n", cfg.Data.Persist, cfg.Data.MaxAge)
	output.Printf("  Redis cache:     %v\n", cfg.Cache.Enabled)
	output.Printf("  Store:           %s\n", cfg.Store.Driver)
	output.Println()

	output.Bold("Notifications")
	output.Printf("  Enabled:         %v\n", cfg.Notifications.Enabled)
	output.Printf("  Level:           %s\n", cfg.Notifications.Level)
	output.Printf("  Webhook:         %v\n", cfg.Notifications.Webhook.Enabled)
	output.Printf("  Slack:           %v\n", cfg.Notifications.Slack.Enabled)
	output.Printf("  Email:           %v\n", cfg.Notifications.Email.Enabled)
}
