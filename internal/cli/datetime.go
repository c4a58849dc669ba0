package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var reDateOnly = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// parseDate parses:
// - YYYY-MM-DD (midnight UTC)
// - RFC3339 / RFC3339Nano
// - today, tomorrow, +Nd (relative to now, date only)
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	day := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	switch strings.ToLower(s) {
	case "today":
		return day(now), nil
	case "tomorrow":
		return day(now).AddDate(0, 0, 1), nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "+%dd", &n); err == nil && strings.HasSuffix(s, "d") {
		return day(now).AddDate(0, 0, n), nil
	}
	if reDateOnly.MatchString(s) {
		return time.Parse("2006-01-02", s)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD, RFC3339, today, tomorrow, or +Nd)", s)
}
