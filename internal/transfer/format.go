// Package transfer exports tasks to JSON or CSV and imports them back.
package transfer

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FormatVersion is written to the JSON envelope
const FormatVersion = "0.2.0"

// csvHeader is the fixed CSV column set
var csvHeader = []string{"title", "description", "status", "priority", "due_date", "tags", "project", "time_spent_minutes"}

// tagSeparator joins tags in CSV files
const tagSeparator = ";"

// Format is a serialization format
type Format string

// Supported formats
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat resolves a format name. When name is empty the format is
// inferred from the extension of path.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	if name == "" {
		return "", fmt.Errorf("cannot infer format from %q (use json or csv)", path)
	}
	return "", fmt.Errorf("unsupported format %q (use json or csv)", name)
}

// Strategy decides what happens when an imported record names an existing task
type Strategy string

// Conflict strategies
const (
	// StrategySkip leaves an existing task untouched
	StrategySkip Strategy = "skip"
	// StrategyOverwrite replaces the existing task's fields, keeping its ID
	StrategyOverwrite Strategy = "overwrite"
	// StrategyCreateNew always creates a new task
	StrategyCreateNew Strategy = "create_new"
)

// ParseStrategy resolves a strategy name; empty means create_new
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyCreateNew, nil
	case StrategySkip, StrategyOverwrite, StrategyCreateNew:
		return s, nil
	default:
		return "", fmt.Errorf("unknown import strategy %q (valid: skip, overwrite, create_new)", name)
	}
}
