package models

import (
	"strings"
	"time"

	"github.com/Julienbatt/DringDring-sub000/internal/apperrors"
)

// MonthLayout is the canonical period key, e.g. "2025-03".
const MonthLayout = "2006-01"

// ParseMonth parses a YYYY-MM period key into the first instant of the
// month, UTC.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, apperrors.InvalidInput("invalid month %q, expected YYYY-MM", s)
	}
	return t, nil
}

// MonthKey renders the period key of a date.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// MonthBounds returns the half-open [start, end) interval of the month
// containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// CompactMonth renders YYYYMM, the form used in reference seeds.
func CompactMonth(t time.Time) string {
	return t.Format("200601")
}

// IsIndependentHQ reports whether a shop's HQ is the sentinel group of
// independent shops: no HQ at all, or a name containing "indep".
// TODO: replace the substring rule with an explicit flag column on HQ.
func IsIndependentHQ(hq *HQ) bool {
	if hq == nil {
		return true
	}
	return strings.Contains(strings.ToLower(hq.Name), "indep")
}

// FullName renders the client name the way logistics snapshots and
// invoice lines print it.
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}
