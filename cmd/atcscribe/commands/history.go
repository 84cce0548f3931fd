package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atcscribe/atcscribe-core/internal/history"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse and prune stored transcriptions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all transcriptions grouped by day",
	Long: `List every stored transcription, newest day first.

Examples:
  atcscribe history list
  atcscribe history list --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			records, err := store.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			groups := history.GroupByDate(records)
			if jsonOutput {
				return printJSON(groups)
			}
			if len(groups) == 0 {
				fmt.Println("no transcriptions stored")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("%s (%d)\n", g.Date, len(g.Records))
				printRecords(g.Records)
			}
			return nil
		})
	},
}

var historyTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List today's transcriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			records, err := store.GetToday(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(records)
			}
			if len(records) == 0 {
				fmt.Println("no transcriptions today")
				return nil
			}
			printRecords(records)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one transcription by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			return store.Delete(cmd.Context(), args[0])
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored transcription",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd, func(store *history.Store) error {
			return store.Clear(cmd.Context())
		})
	},
}

func withHistory(cmd *cobra.Command, fn func(*history.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cmd.Context(), cfg.History, cliLogger())
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func printRecords(records []protocol.Transcription) {
	for _, r := range records {
		line := fmt.Sprintf("  %s  %s", r.Timestamp.Local().Format(time.TimeOnly), r.Text)
		if r.Frequency != "" {
			line += fmt.Sprintf("  [%s]", r.Frequency)
		}
		if len(r.DetectedCallsigns) > 0 {
			line += "  " + strings.Join(r.DetectedCallsigns, ", ")
		}
		fmt.Println(line)
	}
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyTodayCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
}
