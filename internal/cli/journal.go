package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stock-pattern/internal/models"
	"stock-pattern/internal/store"
)

// addJournalCommands adds journal commands.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Trading journal management",
		Long:  "Record and review free-form trading notes.",
	}

	cmd.AddCommand(newJournalAddCmd(app))
	cmd.AddCommand(newJournalListCmd(app))
	cmd.AddCommand(newJournalRemoveCmd(app))

	rootCmd.AddCommand(cmd)
}

func newJournalAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <subject> [body...]",
		Short: "Add a journal entry",
		Example: `  stockpattern journal add "AAPL wedge" "Entered on volume, stop under the lower line"
  stockpattern journal add "Weekly review" --date 2024-03-08`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			date, err := dateFlag(cmd, "date")
			if err != nil {
				output.Error("%v", err)
				return err
			}
			if date.IsZero() {
				date = time.Now()
			}

			entry := &models.JournalEntry{
				Date:         date,
				EntrySubject: strings.TrimSpace(args[0]),
				EntryBody:    strings.Join(args[1:], " "),
				IsActive:     true,
			}

			st, err := app.Store()
			if err != nil {
				output.Error("Failed to open store: %v", err)
				return err
			}
			ctx, cancel := commandContext(0)
			defer cancel()

			if err := st.SaveJournalEntry(ctx, entry); err != nil {
				output.Error("Failed to save entry: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(entry)
			}
			output.Success("✓ Journal entry %d saved", entry.ID)
			return nil
		},
	}
	cmd.Flags().String("date", "", "entry date (YYYY-MM-DD, default now)")
	return cmd
}

func newJournalListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			all, _ := cmd.Flags().GetBool("all")
			from, err := dateFlag(cmd, "from")
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

			entries, err := st.GetJournal(ctx, store.JournalFilter{
				StartDate:  from,
				ActiveOnly: !all,
				Limit:      limit,
			})
			if err != nil {
				output.Error("Failed to load journal: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Info("No journal entries.")
				return nil
			}
			for _, e := range entries {
				header := FormatDate(e.Date) + "  #" + strconv.FormatInt(e.ID, 10) + "  " + e.EntrySubject
				if !e.IsActive {
					output.Dim("%s (removed)", header)
				} else {
					output.Bold("%s", header)
				}
				if e.EntryBody != "" {
					output.Printf("  %s\n", e.EntryBody)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum entries")
	cmd.Flags().String("from", "", "entries on or after this date (YYYY-MM-DD)")
	cmd.Flags().Bool("all", false, "include removed entries")
	return cmd
}

func newJournalRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a journal entry",
		Long:    "Deactivate a journal entry. Removed entries stay in the database and show with 'journal list --all'.",
		Args:    cobra.ExactArgs(1),
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

			if err := st.DeactivateJournalEntry(ctx, id); err != nil {
				output.Error("Failed to remove entry %d: %v", id, err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int64{"removed": id})
			}
			output.Success("✓ Journal entry %d removed", id)
			return nil
		},
	}
}
