package main

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// titleStatus renders a stored status value for humans:
// running_with_errors becomes "Running With Errors".
func titleStatus(status string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(status), "_", " ")
	return cases.Title(language.Und).String(cleaned)
}

func formatProgress(progress float64) string {
	value := strconv.FormatFloat(progress, 'f', 1, 64)
	value = strings.TrimSuffix(value, ".0")
	return value + "%"
}

// formatTimestamp shortens an RFC3339 API timestamp for table display.
func formatTimestamp(value string) string {
	if value == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return parsed.UTC().Format("2006-01-02 15:04:05")
}

// truncate shortens long free-text cells so tables stay readable.
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

// parseTimeFlag accepts RFC3339 or a bare date for the list filters.
func parseTimeFlag(value string) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse("2006-01-02", value)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
