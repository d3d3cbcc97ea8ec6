// Package export writes fan-out results to files and streams.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goosewin/qforia/internal/core"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is used when CSV output is saved without an explicit path.
const DefaultFilename = "qforia_output.csv"

// Format is an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Formats lists every accepted format name.
var Formats = []Format{FormatTable, FormatCSV, FormatJSON, FormatYAML, FormatMarkdown}

// ParseFormat maps user input to a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "table":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected table, csv, json, yaml or markdown)", value)
	}
}

// FormatForPath guesses the format from a file extension.
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	default:
		return "", false
	}
}

// WriteCSV writes a header row followed by one row per query, columns in
// core.Columns order. Embedded line breaks are flattened to spaces so that
// every record occupies exactly one line.
func WriteCSV(w io.Writer, queries []core.ExpandedQuery) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(core.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, query := range queries {
		row := query.Row()
		for i := range row {
			row[i] = flattenLines(row[i])
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the full result, generation details included.
func WriteJSON(w io.Writer, result core.FanoutResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(normalize(result)); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

func WriteYAML(w io.Writer, result core.FanoutResult) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(normalize(result)); err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}
	return encoder.Close()
}

// WriteMarkdown writes a GitHub-flavoured table.
func WriteMarkdown(w io.Writer, queries []core.ExpandedQuery) error {
	var b strings.Builder
	b.WriteString("| " + strings.Join(core.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(core.Columns)) + "\n")
	for _, query := range queries {
		cells := query.Row()
		for i := range cells {
			cells[i] = markdownCell(cells[i])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Write encodes result in format. FormatTable is not handled here.
func Write(w io.Writer, format Format, result core.FanoutResult) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, result.Queries)
	case FormatJSON:
		return WriteJSON(w, result)
	case FormatYAML:
		return WriteYAML(w, result)
	case FormatMarkdown:
		return WriteMarkdown(w, result.Queries)
	default:
		return fmt.Errorf("format %q cannot be exported", format)
	}
}

// WriteFile writes result to path atomically. A directory path receives
// DefaultFilename.
func WriteFile(path string, format Format, result core.FanoutResult) (string, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultFilename
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFilename)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".qforia-export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Write(tmp, format, result); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("chmod export: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

func normalize(result core.FanoutResult) core.FanoutResult {
	if result.Queries == nil {
		result.Queries = []core.ExpandedQuery{}
	}
	return result
}

func flattenLines(value string) string {
	value = strings.ReplaceAll(value, "\r\n", " ")
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(value)
}

func markdownCell(value string) string {
	return strings.ReplaceAll(flattenLines(value), "|", `\|`)
}
