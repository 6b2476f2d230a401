package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/inkwell/internal/persist"
	"github.com/fakeyudi/inkwell/internal/search"
	"github.com/fakeyudi/inkwell/internal/session"
)

var (
	searchRegex         bool
	searchCaseSensitive bool
	searchWholeWord     bool
	searchReplace       string
	searchWrite         bool
)

var searchCmd = &cobra.Command{
	Use:   "search <file> <query>",
	Short: "Find, and optionally replace, text in a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, query := args[0], args[1]
		opts := search.Options{
			CaseSensitive: searchCaseSensitive,
			UseRegex:      searchRegex,
			WholeWord:     searchWholeWord,
		}
		timeout := cfg.SearchTimeout.Std()

		// The engine treats a bad pattern as zero matches; here it is an error.
		if _, err := search.Compile(query, opts, timeout); err != nil {
			return fmt.Errorf("invalid query %q: %w", query, err)
		}

		ctx := context.Background()
		disk := persist.Disk{}
		content, err := disk.ReadDocument(ctx, path)
		if err != nil {
			return err
		}

		reg := session.NewRegistry()
		id := reg.Create(session.CreateOptions{Path: path, Content: content})
		engine := search.NewEngine(reg, search.EngineOptions{MatchTimeout: timeout, Logger: slog.Default()})
		defer engine.Close()

		matches := engine.Search(query, opts)
		replacing := cmd.Flags().Changed("replace")
		if !replacing {
			runes := []rune(content)
			for _, m := range matches {
				line, col := position(runes, m.Start)
				cmd.Printf("%s:%d:%d: %s\n", path, line, col, m.Text)
			}
			cmd.Printf("%d match(es)\n", len(matches))
			return nil
		}

		n := engine.ReplaceAll(searchReplace)
		s := reg.Get(id)
		if !searchWrite {
			cmd.Print(s.Content())
			return nil
		}
		if n == 0 {
			cmd.Println("no matches; file unchanged")
			return nil
		}
		if err := disk.WriteDocument(ctx, path, s.Content()); err != nil {
			return err
		}
		cmd.Printf("Replaced %d occurrence(s) in %s\n", n, path)
		return nil
	},
}

// position returns the 1-based line and column of rune offset pos.
func position(runes []rune, pos int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < pos && i < len(runes); i++ {
		if runes[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func init() {
	searchCmd.Flags().BoolVarP(&searchRegex, "regex", "e", false, "treat the query as a regular expression")
	searchCmd.Flags().BoolVarP(&searchCaseSensitive, "case-sensitive", "c", false, "match case")
	searchCmd.Flags().BoolVarP(&searchWholeWord, "whole-word", "w", false, "match whole words only")
	searchCmd.Flags().StringVarP(&searchReplace, "replace", "r", "", "replace every match (group references like $1 expand with --regex)")
	searchCmd.Flags().BoolVar(&searchWrite, "write", false, "save the replaced text back to the file instead of printing it")
	rootCmd.AddCommand(searchCmd)
}
