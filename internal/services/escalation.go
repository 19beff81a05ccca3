package services

import (
	"sort"
	"time"
)

// NextReminder picks the reminder number to send for a submitter invited at sentAt,
// given the numbers already recorded in the ledger. At most one number is picked
// per call so a delayed tick never sends a backlog of escalations at once.
func NextReminder(sentAt time.Time, alreadySent []int, durations []ReminderDuration, now time.Time) (int, bool) {
	sent := make(map[int]bool, len(alreadySent))
	for _, n := range alreadySent {
		sent[n] = true
	}

	ordered := make([]ReminderDuration, len(durations))
	copy(ordered, durations)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	for _, d := range ordered {
		if sent[d.Number] {
			continue
		}
		if now.Before(sentAt.Add(d.Duration)) {
			continue
		}
		// Escalations go out in order: N waits for N-1.
		if d.Number > 1 && !sent[d.Number-1] {
			continue
		}
		return d.Number, true
	}
	return 0, false
}
