package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/inkwell/internal/config"
	"github.com/fakeyudi/inkwell/internal/eventloop"
	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/session"
	"github.com/fakeyudi/inkwell/internal/tui"
	"github.com/fakeyudi/inkwell/internal/watch"
	"github.com/fakeyudi/inkwell/internal/workspace"
)

var (
	editNoAutosave bool
	editInterval   time.Duration
)

var editCmd = &cobra.Command{
	Use:   "edit [file...]",
	Short: "Open documents in the terminal editor",
	Long: "Open documents in the terminal editor. Unsaved work from a previous\n" +
		"session that ended abnormally is offered for recovery first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdin.Fd()) || !term.IsTerminal(os.Stdout.Fd()) {
			return errors.New("edit needs an interactive terminal")
		}

		if editNoAutosave {
			off := false
			cfg.AutoSave = &off
		}
		if cmd.Flags().Changed("autosave-interval") {
			if editInterval <= 0 {
				return fmt.Errorf("--autosave-interval must be positive")
			}
			cfg.AutoSaveInterval = config.Duration(editInterval)
		}

		store, err := newStore()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		loop := eventloop.New()
		go loop.Run(ctx)

		logger := slog.Default()
		watcher, err := watch.New(loop, watch.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("starting file watcher: %w", err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)

		configPath, err := config.GlobalPath()
		if err != nil {
			logger.Debug("global config not watched", "err", err)
			configPath = ""
		}

		bridge := tui.NewBridge(loop, logger)
		ws := workspace.New(loop, workspace.Options{
			Config:     cfg,
			Gateway:    persist.NewGateway(persist.Disk{}, bridge, bridge),
			Confirmer:  bridge,
			Recovery:   store,
			Watcher:    watcher,
			ConfigPath: configPath,
			Logger:     logger,
		})

		var recoverable int
		err = loop.Call(ctx, func() {
			if ws.CheckRecovery(ctx) {
				recoverable = len(ws.Recovery().Pending().DirtyTabs())
			}
			ws.Start()
			for _, path := range args {
				path := path
				ws.Open(path, func(_ session.ID, err error) {
					if err != nil {
						logger.Warn("open failed", "path", path, "err", err)
					}
				})
			}
			if len(args) == 0 && recoverable == 0 {
				ws.New()
			}
		})
		if err != nil {
			return err
		}
		logger.Info("editor started", "files", len(args), "recoverable", recoverable)

		runErr := tui.Run(bridge, ws, recoverable)

		// Unbind and stop while the loop still runs; cancel ends it.
		var discarded int
		if err := loop.Call(ctx, func() {
			discarded = ws.DiscardedEdits()
			bridge.Unbind()
			ws.Stop()
		}); err != nil {
			logger.Warn("shutdown", "err", err)
		}
		logger.Info("editor stopped", "discarded_edits", discarded)
		return runErr
	},
}

func init() {
	editCmd.Flags().BoolVar(&editNoAutosave, "no-autosave", false, "disable autosave for this session")
	editCmd.Flags().DurationVar(&editInterval, "autosave-interval", 0, "autosave interval for this session, e.g. 10s")
	rootCmd.AddCommand(editCmd)
}
