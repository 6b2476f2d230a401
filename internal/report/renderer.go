// Package report renders a recovery snapshot for people and scripts, and
// parses a rendered report back into a snapshot.
package report

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fakeyudi/inkwell/internal/recovery"
	"github.com/fakeyudi/inkwell/internal/session"
)

const (
	versionSentinel = "<!-- inkwell-report-version: 1 -->"
	dataPrefix      = "<!-- inkwell-data: "
	dataSuffix      = " -->"
	timeLayout      = "2006-01-02 15:04:05 MST"
)

// Renderer serializes a Snapshot to bytes.
type Renderer interface {
	Render(snap *recovery.Snapshot) ([]byte, error)
}

// ForFormat returns the renderer for "markdown" or "json".
func ForFormat(format string) (Renderer, error) {
	switch format {
	case "", "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want markdown or json)", format)
	}
}

// JSONRenderer renders a Snapshot in its on-disk wire format, indented.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(snap *recovery.Snapshot) ([]byte, error) {
	return json.MarshalIndent(snap, "", "  ")
}

// MarkdownRenderer renders a Snapshot as Markdown with an embedded base64
// JSON payload, so the report can be imported again losslessly.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(snap *recovery.Snapshot) ([]byte, error) {
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Recovery snapshot, %s\n\n", snap.Time().Format(timeLayout))

	dirty := snap.DirtyTabs()
	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Tabs: %d\n", len(snap.Tabs))
	fmt.Fprintf(&sb, "- Unsaved: %d\n", len(dirty))
	if active := activeTab(snap); active != nil {
		fmt.Fprintf(&sb, "- Active: %s\n", active.FileName)
	}
	sb.WriteString("\n")

	sb.WriteString("## Tabs\n\n")
	if len(snap.Tabs) == 0 {
		sb.WriteString("_No tabs recorded._\n")
	} else {
		sb.WriteString("| Name | Path | Type | Unsaved | Words | Chars |\n")
		sb.WriteString("|------|------|------|---------|-------|-------|\n")
		for _, tab := range snap.Tabs {
			path := "_none_"
			if tab.FilePath != nil {
				path = *tab.FilePath
			}
			unsaved := "no"
			if tab.IsDirty {
				unsaved = "yes"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s | %d | %d |\n",
				cell(tab.FileName), cell(path), tab.FileType, unsaved,
				session.WordCount(tab.Content), session.CharCount(tab.Content),
			)
		}
	}
	sb.WriteString("\n")

	sb.WriteString("## Unsaved Changes\n\n")
	if len(dirty) == 0 {
		sb.WriteString("_Nothing to recover._\n")
	}
	for _, tab := range dirty {
		fmt.Fprintf(&sb, "### %s\n\n", tab.FileName)
		fence := fenceFor(tab.Content)
		lang := ""
		if tab.FileType == string(session.KindMarkdown) {
			lang = "markdown"
		}
		fmt.Fprintf(&sb, "%s%s\n", fence, lang)
		sb.WriteString(tab.Content)
		if !strings.HasSuffix(tab.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString(fence + "\n\n")
	}

	return []byte(sb.String()), nil
}

func activeTab(snap *recovery.Snapshot) *recovery.Tab {
	if snap.ActiveTabID == nil {
		return nil
	}
	for i := range snap.Tabs {
		if snap.Tabs[i].ID == *snap.ActiveTabID {
			return &snap.Tabs[i]
		}
	}
	return nil
}

// fenceFor returns a backtick fence longer than any run inside content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
