package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns nil if the string is not a relative date format.
func parseRelativeDate(dateStr string, now time.Time) (*time.Time, error) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return &today, nil
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t, nil
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t, nil
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil, nil
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}

	return &result, nil
}

// isoLayouts are the ISO-8601 forms accepted for due dates, most specific first
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseISODate parses an ISO-8601 date or timestamp. A trailing "Z" means UTC,
// and values without a zone are taken as UTC.
func ParseISODate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate(s)
}

// ParseDateFlag parses a due date given on the command line.
// Supported relative formats: today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm
// Supported absolute formats: anything ParseISODate accepts.
// Returns nil, nil for empty string (clear date).
func ParseDateFlag(dateStr string) (*time.Time, error) {
	return parseDateFlagAt(dateStr, time.Now())
}

func parseDateFlagAt(dateStr string, now time.Time) (*time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil, nil
	}

	t, err := parseRelativeDate(dateStr, now)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	parsed, err := ParseISODate(dateStr)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// timeInputPattern matches "1.5h", "2h30m", "45m" once whitespace is removed
var timeInputPattern = regexp.MustCompile(`^(?:(\d+(?:\.\d+)?)h)?(?:(\d+)m)?$`)

// ParseTimeInput converts a human time entry into minutes.
// A bare integer is minutes; "h" and "m" suffixes may be combined ("2h30m").
// Input is case-insensitive and whitespace is ignored.
func ParseTimeInput(input string) (int, error) {
	s := strings.ToLower(strings.Join(strings.Fields(input), ""))
	if s == "" {
		return 0, ErrInvalidDuration(input)
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, ErrInvalidDuration(input)
		}
		return n, nil
	}

	m := timeInputPattern.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, ErrInvalidDuration(input)
	}

	minutes := 0
	if m[1] != "" {
		hours, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, ErrInvalidDuration(input)
		}
		minutes += int(hours*60 + 0.5)
	}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, ErrInvalidDuration(input)
		}
		minutes += n
	}
	return minutes, nil
}
