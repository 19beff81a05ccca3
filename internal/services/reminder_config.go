package services

import (
	"time"

	"docremind/internal/models"
)

// ReminderDuration is one configured escalation step.
type ReminderDuration struct {
	Number   int
	Duration time.Duration
}

// ResolveReminderDurations reads the three duration slots in order and keeps the
// ones with a known token. Slot position is the escalation number, so a gap
// leaves its number unused rather than shifting later slots down.
func ResolveReminderDurations(settings *models.ReminderSettings) []ReminderDuration {
	if settings == nil {
		return nil
	}

	var out []ReminderDuration
	for i, token := range settings.DurationTokens() {
		d, ok := LookupDuration(token)
		if !ok {
			continue
		}
		out = append(out, ReminderDuration{Number: i + 1, Duration: d})
	}
	return out
}
