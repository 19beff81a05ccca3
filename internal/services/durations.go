package services

import (
	"strings"
	"time"
)

const day = 24 * time.Hour

// reminderDurations maps the duration tokens accepted in reminder settings to time spans.
var reminderDurations = map[string]time.Duration{
	"two_minutes":       2 * time.Minute,
	"one_hour":          time.Hour,
	"two_hours":         2 * time.Hour,
	"four_hours":        4 * time.Hour,
	"eight_hours":       8 * time.Hour,
	"twelve_hours":      12 * time.Hour,
	"twenty_four_hours": 24 * time.Hour,
	"two_days":          2 * day,
	"three_days":        3 * day,
	"four_days":         4 * day,
	"five_days":         5 * day,
	"six_days":          6 * day,
	"seven_days":        7 * day,
	"eight_days":        8 * day,
	"fifteen_days":      15 * day,
	"twenty_one_days":   21 * day,
	"thirty_days":       30 * day,
}

// LookupDuration resolves a duration token. Blank and unknown tokens report false.
func LookupDuration(token string) (time.Duration, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	d, ok := reminderDurations[token]
	return d, ok
}
