package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/inkwell/internal/report"
)

var importForce bool

var importCmd = &cobra.Command{
	Use:   "import <report>",
	Short: "Load a report written by status as the recovery snapshot",
	Long: "Load a Markdown or JSON report written by `inkwell status` as the recovery\n" +
		"snapshot, so the next `inkwell edit` offers its unsaved documents.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file not found: %s", path)
			}
			return err
		}

		var parser report.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			parser = &report.JSONParser{}
		case ".md", ".markdown":
			parser = &report.MarkdownParser{}
		default:
			parser = report.Detect(data)
		}
		snap, err := parser.Parse(data)
		if err != nil {
			return err
		}
		dirty := len(snap.DirtyTabs())
		if dirty == 0 {
			return fmt.Errorf("%s has no unsaved documents to recover", path)
		}

		store, err := newStore()
		if err != nil {
			return err
		}
		exists, err := store.Exists()
		if err != nil {
			return err
		}
		if exists && !importForce {
			return fmt.Errorf("a recovery snapshot already exists; run `inkwell discard` or pass --force")
		}
		// Restamp so the next start does not treat it as stale.
		snap.Timestamp = time.Now().UnixMilli()
		if err := store.Write(snap); err != nil {
			return err
		}
		cmd.Printf("Imported %d unsaved document(s); run `inkwell edit` to recover them\n", dirty)
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importForce, "force", false, "replace an existing recovery snapshot")
	rootCmd.AddCommand(importCmd)
}
