package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atcscribe/atcscribe-core/internal/model"
	"github.com/atcscribe/atcscribe-core/internal/protocol"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage recognition models",
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog models and their download state",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newModelManager(nil)
		if err != nil {
			return err
		}

		type entry struct {
			Name       string `json:"name"`
			Size       int64  `json:"size"`
			Downloaded bool   `json:"downloaded"`
			Default    bool   `json:"default"`
		}
		entries := make([]entry, 0, len(model.Catalog))
		for _, info := range model.Catalog {
			entries = append(entries, entry{
				Name:       info.Name,
				Size:       info.Size,
				Downloaded: mgr.IsDownloaded(info.Name),
				Default:    info.Name == model.DefaultModel,
			})
		}
		if jsonOutput {
			return printJSON(entries)
		}
		for _, e := range entries {
			status := "available"
			if e.Downloaded {
				status = "downloaded"
			}
			marker := " "
			if e.Default {
				marker = "*"
			}
			fmt.Printf("%s %-24s %10s  %s\n", marker, e.Name, formatBytes(e.Size), status)
		}
		return nil
	},
}

var modelDownloadCmd = &cobra.Command{
	Use:   "download <name>",
	Short: "Download a catalog model",
	Long: `Download a model from the catalog into the configured model
directory. The file only appears under its final name once the download
completed and verified; an interrupted download leaves nothing behind.

Examples:
  atcscribe model download whisper-small-atc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newModelManager(func(p protocol.DownloadProgress) {
			if jsonOutput {
				return
			}
			if p.BytesTotal > 0 {
				fmt.Printf("\r%s: %5.1f%%", p.Model, 100*float64(p.BytesDone)/float64(p.BytesTotal))
				return
			}
			fmt.Printf("\r%s: %s", p.Model, formatBytes(p.BytesDone))
		})
		if err != nil {
			return err
		}
		if err := mgr.Download(cmd.Context(), args[0]); err != nil {
			if !jsonOutput {
				fmt.Println()
			}
			return err
		}
		if jsonOutput {
			return printJSON(map[string]any{"model": args[0], "downloaded": true})
		}
		fmt.Printf("\r%s: done      \n", args[0])
		return nil
	},
}

var modelDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a downloaded model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newModelManager(nil)
		if err != nil {
			return err
		}
		return mgr.Delete(args[0])
	},
}

func newModelManager(progress model.ProgressFunc) (*model.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return model.NewManager(cfg.Models, cliLogger(), progress), nil
}

func init() {
	modelCmd.AddCommand(modelListCmd)
	modelCmd.AddCommand(modelDownloadCmd)
	modelCmd.AddCommand(modelDeleteCmd)
}
