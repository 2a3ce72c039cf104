package models

import "time"

// Display layouts used in emails, PDFs and exports.
const (
	DateLayout     = "Monday, January 2, 2006"
	TimeLayout     = "3:04 PM"
	DateTimeLayout = "Jan 2, 2006 3:04 PM"
	ShortDate      = "2006-01-02"
)

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

// ParseFlexibleTime accepts RFC3339, a plain date, or a date with minutes.
func ParseFlexibleTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", ShortDate, "01/02/2006", "1/2/06"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
