package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/recovery"
	"github.com/fakeyudi/inkwell/internal/report"
)

var (
	statusFormat string
	statusOutput string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the crash recovery snapshot, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newStore()
		if err != nil {
			return err
		}

		snap, err := store.Read()
		if err != nil {
			if errors.Is(err, recovery.ErrNoSnapshot) {
				cmd.Println(noSnapshotMessage())
				return nil
			}
			return err
		}

		format := statusFormat
		if format == "" {
			format = cfg.DefaultFormat
		}
		renderer, err := report.ForFormat(format)
		if err != nil {
			return err
		}
		data, err := renderer.Render(snap)
		if err != nil {
			return err
		}

		if maxAge := cfg.RecoveryMaxAge.Std(); snap.Age(time.Now()) > maxAge {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: snapshot is older than %s and will be discarded on the next start\n", maxAge)
		}
		if len(snap.DirtyTabs()) == 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: snapshot has no unsaved documents and will be discarded on the next start\n")
		}

		if statusOutput != "" {
			if err := (persist.Disk{}).WriteDocument(context.Background(), statusOutput, string(data)); err != nil {
				return err
			}
			cmd.Printf("Report written to %s\n", statusOutput)
			return nil
		}
		cmd.Print(string(data))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "", "report format: markdown or json (default from config)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "write the report to a file instead of stdout")
	rootCmd.AddCommand(statusCmd)
}
