package attendance

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date; expected YYYY-MM-DD")

// NormalizeDate maps t to midnight UTC of the calendar day t falls on in its own location,
// so a local "2025-05-30 23:30 +03:00" stays on 2025-05-30.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day into its UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return NormalizeDate(t).Format(DateLayout)
}

// DayRange returns the half-open interval [day, day+1) covering t's calendar day.
func DayRange(t time.Time) (from, to time.Time) {
	from = NormalizeDate(t)
	return from, from.AddDate(0, 0, 1)
}
