package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// parseDay reads a calendar day in loc. Numeric dates are day first, as
// the portals print them; "today" and "yesterday" are relative to now.
func parseDay(s string, now time.Time, loc *time.Location) (time.Time, error) {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}

	t, err := dateparse.ParseIn(strings.TrimSpace(s), loc, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), nil
}

// dayRange parses --from and --to. A missing --from means yesterday.
func dayRange(from, to string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if from == "" {
		from = "yesterday"
	}
	f, err := parseDay(from, now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	t, err := parseDay(to, now, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if t.Before(f) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", t.Format(time.DateOnly), f.Format(time.DateOnly))
	}
	return f, t, nil
}
