package cmd

import (
	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete the crash recovery snapshot without restoring it",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newStore()
		if err != nil {
			return err
		}
		exists, err := store.Exists()
		if err != nil {
			return err
		}
		if !exists {
			cmd.Println(noSnapshotMessage())
			return nil
		}
		if err := store.Delete(); err != nil {
			return err
		}
		cmd.Println("recovery snapshot discarded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discardCmd)
}
