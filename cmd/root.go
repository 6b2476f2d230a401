package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/inkwell/internal/config"
	"github.com/fakeyudi/inkwell/internal/recovery"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

var (
	verbose      bool
	recoveryFile string
	logFile      io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "inkwell",
	Short:        "Edit several documents at once, with autosave and crash recovery",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		global, err := config.LoadGlobal()
		if err != nil {
			return fmt.Errorf("loading global config: %w", err)
		}
		project, err := config.LoadProject()
		if err != nil {
			return fmt.Errorf("loading project config: %w", err)
		}
		cfg = config.Merge(global, project)

		if recoveryFile != "" {
			cfg.RecoveryPath = recoveryFile
		}

		// The editor owns the terminal, so its logs go to a file.
		if cmd.Name() == "edit" {
			return setupFileLogging()
		}
		setupLogging(cmd.ErrOrStderr(), slog.LevelWarn)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logFile != nil {
			err := logFile.Close()
			logFile = nil
			return err
		}
		return nil
	},
}

func setupLogging(w io.Writer, level slog.Level) {
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func setupFileLogging() error {
	path := cfg.LogFile
	if path == "" {
		var err error
		if path, err = defaultLogPath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	logFile = f
	setupLogging(f, slog.LevelInfo)
	return nil
}

// defaultLogPath returns $XDG_STATE_HOME/inkwell/inkwell.log, falling back
// to ~/.local/state.
func defaultLogPath() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "inkwell", "inkwell.log"), nil
}

// newStore opens the recovery store selected by the configuration.
func newStore() (recovery.Store, error) {
	return recovery.NewDiskStore(cfg.RecoveryPath)
}

func noSnapshotMessage() string {
	if path, err := recoveryPath(); err == nil {
		return "no recovery snapshot at " + path
	}
	return "no recovery snapshot"
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// recoveryPath returns where the recovery snapshot lives.
func recoveryPath() (string, error) {
	if cfg.RecoveryPath != "" {
		return cfg.RecoveryPath, nil
	}
	return recovery.DefaultPath()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")
	rootCmd.PersistentFlags().StringVar(&recoveryFile, "recovery-file", "", "recovery snapshot location (overrides recovery_path)")
}
