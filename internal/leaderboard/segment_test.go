package leaderboard

import (
	"testing"
	"time"

	"blitzbot/internal/ledger"
)

func stamps(records []ledger.Record) []time.Time {
	out := make([]time.Time, len(records))
	for i, r := range records {
		out[i] = r.Timestamp
	}
	return out
}

func TestSegment(t *testing.T) {
	records := []ledger.Record{
		{Timestamp: day(10)},
		{Timestamp: day(0)},
		{Timestamp: day(1)},
	}

	tests := []struct {
		name    string
		gapDays int
		want    []time.Time
	}{
		{"gap splits", 5, []time.Time{day(10)}},
		{"gap wider than silence", 15, []time.Time{day(0), day(1), day(10)}},
		{"exact gap splits", 9, []time.Time{day(10)}},
		{"disabled", 0, []time.Time{day(0), day(1), day(10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stamps(Segment(records, tt.gapDays))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if !records[0].Timestamp.Equal(day(10)) {
		t.Error("Segment modified its input")
	}
}

func TestSegment_KeepsLastRunOnly(t *testing.T) {
	records := []ledger.Record{
		{Timestamp: day(0)},
		{Timestamp: day(6)},
		{Timestamp: day(7)},
		{Timestamp: day(14)},
		{Timestamp: day(15)},
	}
	got := Segment(records, 5)
	if len(got) != 2 || !got[0].Timestamp.Equal(day(14)) {
		t.Errorf("got %v, want last run starting at day 14", stamps(got))
	}
}

func TestSegment_Empty(t *testing.T) {
	if got := Segment(nil, 5); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}
