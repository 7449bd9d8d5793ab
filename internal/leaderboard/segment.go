package leaderboard

import (
	"sort"
	"time"

	"blitzbot/internal/ledger"
)

// DefaultGapDays is the silence, in days, after which a channel is assumed
// to have been taken over by a new team.
const DefaultGapDays = 5

// Segment keeps the most recent uninterrupted run of records. Records are
// sorted by timestamp; wherever two consecutive records are gapDays or more
// apart, everything up to and including the earlier one is dropped. With no
// such gap all records are kept. The input slice is not modified.
func Segment(records []ledger.Record, gapDays int) []ledger.Record {
	if len(records) == 0 {
		return nil
	}
	sorted := make([]ledger.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	if gapDays <= 0 {
		return sorted
	}

	gap := time.Duration(gapDays) * 24 * time.Hour
	cut := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Sub(sorted[i-1].Timestamp) >= gap {
			cut = i
		}
	}
	return sorted[cut:]
}
