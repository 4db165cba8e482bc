package utils

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeInput(t *testing.T) {
	valid := []struct {
		input string
		want  int
	}{
		{"90", 90},
		{"1", 1},
		{"0", 0},
		{"1.5h", 90},
		{"2h", 120},
		{"2.0h", 120},
		{"0.25h", 15},
		{"1.5 h", 90},
		{"2h30m", 150},
		{"0h30m", 30},
		{"2h 30m", 150},
		{"2 h 30 m", 150},
		{"45m", 45},
		{"15 m", 15},
		{"1.5H", 90},
		{"2H30M", 150},
		{"0h0m", 0},
		{"8h", 480},
	}
	for _, tt := range valid {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeInput(tt.input)
			if err != nil {
				t.Fatalf("ParseTimeInput(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeInput(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}

	for _, input := range []string{"abc", "1.5", "h30m", "2h30", "", "  ", "-5", "m"} {
		t.Run("invalid "+input, func(t *testing.T) {
			_, err := ParseTimeInput(input)
			if err == nil {
				t.Fatalf("ParseTimeInput(%q) expected error", input)
			}
			var ews *ErrorWithSuggestion
			if !errors.As(err, &ews) {
				t.Errorf("error should carry a suggestion, got %T", err)
			}
		})
	}
}

func TestParseISODate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-12-31", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"2024-12-31T17:30:00", time.Date(2024, 12, 31, 17, 30, 0, 0, time.UTC)},
		{"2024-12-31T17:30:00Z", time.Date(2024, 12, 31, 17, 30, 0, 0, time.UTC)},
		{"2024-12-31T17:30:00+02:00", time.Date(2024, 12, 31, 15, 30, 0, 0, time.UTC)},
		{"2024-12-31T17:30:00.5Z", time.Date(2024, 12, 31, 17, 30, 0, 500000000, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseISODate(tt.input)
		if err != nil {
			t.Errorf("ParseISODate(%q) error: %v", tt.input, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseISODate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	for _, bad := range []string{"31/12/2024", "tomorrow", "2024-13-01", ""} {
		if _, err := ParseISODate(bad); err == nil {
			t.Errorf("ParseISODate(%q) expected error", bad)
		}
	}
}

func TestParseDateFlag(t *testing.T) {
	now := time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC)
	today := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"today", today},
		{"tomorrow", today.AddDate(0, 0, 1)},
		{"yesterday", today.AddDate(0, 0, -1)},
		{"+3d", today.AddDate(0, 0, 3)},
		{"-2d", today.AddDate(0, 0, -2)},
		{"+1w", today.AddDate(0, 0, 7)},
		{"+1m", today.AddDate(0, 1, 0)},
		{"2025-01-02", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDateFlagAt(tt.input, now)
		if err != nil {
			t.Errorf("parseDateFlagAt(%q) error: %v", tt.input, err)
			continue
		}
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("parseDateFlagAt(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if got, err := ParseDateFlag(""); got != nil || err != nil {
		t.Errorf("ParseDateFlag(\"\") = %v, %v; want nil, nil", got, err)
	}
	if _, err := ParseDateFlag("next tuesday"); err == nil {
		t.Error("ParseDateFlag(next tuesday) expected error")
	}
}
