package report

import (
	"encoding/base64"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/fakeyudi/inkwell/internal/recovery"
)

func optionalString(t *rapid.T, label string) *string {
	if !rapid.Bool().Draw(t, "has_"+label) {
		return nil
	}
	s := rapid.StringN(1, 40, -1).Draw(t, label)
	return &s
}

// generateSnapshot produces a snapshot with at least one tab.
func generateSnapshot(t *rapid.T) *recovery.Snapshot {
	n := rapid.IntRange(1, 5).Draw(t, "num_tabs")
	snap := &recovery.Snapshot{
		Timestamp: rapid.Int64Range(1_000_000_000_000, 1_900_000_000_000).Draw(t, "timestamp"),
		Tabs:      make([]recovery.Tab, n),
	}
	for i := range snap.Tabs {
		snap.Tabs[i] = recovery.Tab{
			ID:        rapid.StringMatching(`[a-f0-9-]{8,36}`).Draw(t, "id"),
			FileName:  rapid.StringN(1, 30, -1).Draw(t, "file_name"),
			FilePath:  optionalString(t, "file_path"),
			Content:   rapid.String().Draw(t, "content"),
			IsDirty:   rapid.Bool().Draw(t, "is_dirty"),
			FileType:  rapid.SampledFrom([]string{"markdown", "text"}).Draw(t, "file_type"),
			Extension: optionalString(t, "extension"),
		}
	}
	if rapid.Bool().Draw(t, "has_active") {
		id := snap.Tabs[rapid.IntRange(0, n-1).Draw(t, "active")].ID
		snap.ActiveTabID = &id
	}
	return snap
}

// Feature: inkwell, Property 13: Report round-trip
func TestReportRoundTrip(t *testing.T) {
	for _, format := range []string{"markdown", "json"} {
		t.Run(format, func(t *testing.T) {
			renderer, err := ForFormat(format)
			if err != nil {
				t.Fatal(err)
			}
			rapid.Check(t, func(t *rapid.T) {
				original := generateSnapshot(t)
				data, err := renderer.Render(original)
				if err != nil {
					t.Fatalf("Render: %v", err)
				}
				got, err := Detect(data).Parse(data)
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				if !reflect.DeepEqual(got, original) {
					t.Fatalf("round-trip mismatch:\n got %+v\nwant %+v", got, original)
				}
			})
		})
	}
}

// Feature: inkwell, Property 14: Report completeness
func TestMarkdownReportCompleteness(t *testing.T) {
	r := &MarkdownRenderer{}
	rapid.Check(t, func(t *rapid.T) {
		snap := generateSnapshot(t)
		data, err := r.Render(snap)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		md := string(data)
		for _, section := range []string{"## Summary", "## Tabs", "## Unsaved Changes"} {
			if !strings.Contains(md, section) {
				t.Errorf("missing section %q", section)
			}
		}
		for _, tab := range snap.DirtyTabs() {
			if !strings.Contains(md, tab.Content) {
				t.Errorf("unsaved content of %q missing", tab.FileName)
			}
		}
	})
}

func TestMarkdownReportLayout(t *testing.T) {
	path := "/notes/plan.md"
	active := "a"
	snap := &recovery.Snapshot{
		Timestamp:   1_700_000_000_000,
		ActiveTabID: &active,
		Tabs: []recovery.Tab{
			{ID: "a", FileName: "plan.md", FilePath: &path, Content: "one ```two``` three", IsDirty: true, FileType: "markdown"},
			{ID: "b", FileName: "Untitled", Content: "clean", FileType: "text"},
		},
	}
	data, err := (&MarkdownRenderer{}).Render(snap)
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	for _, want := range []string{
		"- Tabs: 2\n",
		"- Unsaved: 1\n",
		"- Active: plan.md\n",
		"| plan.md | /notes/plan.md | markdown | yes | 3 | 19 |",
		"| Untitled | _none_ | text | no | 1 | 5 |",
		"### plan.md\n\n````markdown\none ```two``` three\n````\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "### Untitled") {
		t.Error("clean tab listed under unsaved changes")
	}
}

func TestEmptySnapshotReport(t *testing.T) {
	data, err := (&MarkdownRenderer{}).Render(&recovery.Snapshot{Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)
	if !strings.Contains(md, "_No tabs recorded._") || !strings.Contains(md, "_Nothing to recover._") {
		t.Errorf("empty report:\n%s", md)
	}
}

func TestForFormat(t *testing.T) {
	if _, ok := mustRenderer(t, "").(*MarkdownRenderer); !ok {
		t.Error("default format is not markdown")
	}
	if _, ok := mustRenderer(t, "json").(*JSONRenderer); !ok {
		t.Error("json format is not JSON")
	}
	if _, err := ForFormat("yaml"); err == nil {
		t.Error("ForFormat(yaml) succeeded")
	}
}

func mustRenderer(t *testing.T, format string) Renderer {
	t.Helper()
	r, err := ForFormat(format)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestMarkdownParserRejectsInvalidReports(t *testing.T) {
	valid := base64.StdEncoding.EncodeToString([]byte(`{"timestamp":1,"activeTabId":null,"tabs":[]}`))
	tests := []struct {
		name string
		in   string
	}{
		{"plain markdown", "# Notes\n\n- item\n"},
		{"missing payload", versionSentinel + "\n\n# Recovery\n"},
		{"unterminated payload", versionSentinel + "\n" + dataPrefix + valid},
		{"corrupted base64", versionSentinel + "\n" + dataPrefix + "!!!not-base64!!!" + dataSuffix},
		{"bad json", versionSentinel + "\n" + dataPrefix + base64.StdEncoding.EncodeToString([]byte("{nope")) + dataSuffix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&MarkdownParser{}).Parse([]byte(tt.in))
			if err == nil || !strings.Contains(err.Error(), "not a valid inkwell report") {
				t.Errorf("err = %v", err)
			}
		})
	}

	if _, err := (&MarkdownParser{}).Parse([]byte(versionSentinel + "\n" + dataPrefix + valid + dataSuffix)); err != nil {
		t.Errorf("minimal report rejected: %v", err)
	}
}

func TestDetect(t *testing.T) {
	if _, ok := Detect([]byte("  \n{\"tabs\":[]}")).(*JSONParser); !ok {
		t.Error("JSON input not detected")
	}
	if _, ok := Detect([]byte(versionSentinel)).(*MarkdownParser); !ok {
		t.Error("Markdown input not detected")
	}
}
