package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atcscribe/atcscribe-core/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write daemon preferences",
	Long: `Read and write daemon preferences.

Known keys:
  dark_mode     - UI theme preference (true/false)
  last_channel  - Frequency label restored on daemon start

The settings store is exclusive: stop the daemon before writing.`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one preference value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(func(store *settings.Store) error {
			value, err := store.String(args[0], "")
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string]string{args[0]: value})
			}
			fmt.Println(value)
			return nil
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one preference value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(func(store *settings.Store) error {
			key, value := args[0], args[1]
			if key == settings.KeyDarkMode {
				b, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("%s expects a boolean: %w", key, err)
				}
				return store.SetBool(key, b)
			}
			return store.SetString(key, value)
		})
	},
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove one preference value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSettings(func(store *settings.Store) error {
			return store.Delete(args[0])
		})
	},
}

func withSettings(fn func(*settings.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := settings.Open(cfg.Settings, cliLogger())
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsUnsetCmd)
}
