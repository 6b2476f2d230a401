package report

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fakeyudi/inkwell/internal/recovery"
)

// Parser deserializes a rendered report back into a Snapshot.
type Parser interface {
	Parse(data []byte) (*recovery.Snapshot, error)
}

// Detect picks the parser for data: JSON when it starts with '{',
// Markdown otherwise.
func Detect(data []byte) Parser {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

// JSONParser parses a JSON report.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*recovery.Snapshot, error) {
	var snap recovery.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse JSON report: %w", err)
	}
	return &snap, nil
}

// MarkdownParser extracts the embedded payload of a Markdown report.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*recovery.Snapshot, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a valid inkwell report: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a valid inkwell report: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a valid inkwell report: malformed data payload")
	}

	jsonBytes, err := base64.StdEncoding.DecodeString(content[start : start+end])
	if err != nil {
		return nil, fmt.Errorf("not a valid inkwell report: corrupted base64 payload: %w", err)
	}
	var snap recovery.Snapshot
	if err := json.Unmarshal(jsonBytes, &snap); err != nil {
		return nil, fmt.Errorf("not a valid inkwell report: failed to parse embedded JSON: %w", err)
	}
	return &snap, nil
}
