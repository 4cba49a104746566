package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// workflow is a titled group of example invocations. Text after '#' is a
// comment.
type workflow struct {
	title    string
	commands []string
}

var workflows = []workflow{
	{
		title: "First Run",
		commands: []string{
			"stockpattern config init         # Write config.toml",
			"stockpattern config profiles     # Compare detector profiles",
			"stockpattern config validate     # Check settings and keys",
		},
	},
	{
		title: "Daily Scan",
		commands: []string{
			"stockpattern scan                # Scan the configured tickers",
			"stockpattern scan AAPL NVDA      # Scan specific tickers",
			"stockpattern scan --set nasdaq --lookback 12",
			"stockpattern setups list --open  # Setups awaiting a result",
		},
	},
	{
		title: "Record Results",
		commands: []string{
			"stockpattern setups show 42",
			"stockpattern setups finalize 42 --sold-at 187.35",
			"stockpattern setups finalize 43 --false-positive",
			"stockpattern report summary      # Win rate and average return",
		},
	},
	{
		title: "Offline Research",
		commands: []string{
			"stockpattern data export --set stocks --format parquet",
			"stockpattern data fetch AAPL --limit 30",
		},
	},
	{
		title: "Run as a Service",
		commands: []string{
			"stockpattern serve               # API plus scheduled scan",
			"stockpattern serve --no-schedule # API only",
		},
	},
}

func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newExamplesCmd())
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "examples",
		Short:       "Show common workflow examples",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string][]string, len(workflows))
				for _, w := range workflows {
					out[w.title] = w.commands
				}
				return output.JSON(out)
			}

			output.Bold("Common Workflow Examples")
			output.Println()
			for _, w := range workflows {
				output.Bold("%s", w.title)
				for _, c := range w.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}
			return nil
		},
	}
}
