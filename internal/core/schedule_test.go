package core

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	cases := []struct {
		name     string
		interval RecurringInterval
		anchor   time.Time
		want     time.Time
	}{
		{"daily", Daily, date(2024, time.March, 15), date(2024, time.March, 16)},
		{"daily month end", Daily, date(2024, time.January, 31), date(2024, time.February, 1)},
		{"weekly", Weekly, date(2024, time.March, 15), date(2024, time.March, 22)},
		{"weekly across month", Weekly, date(2024, time.March, 28), date(2024, time.April, 4)},
		{"monthly plain", Monthly, date(2024, time.March, 15), date(2024, time.April, 15)},
		{"monthly jan31 leap", Monthly, date(2024, time.January, 31), date(2024, time.February, 29)},
		{"monthly jan31 non-leap", Monthly, date(2025, time.January, 31), date(2025, time.February, 28)},
		{"monthly mar31 to apr30", Monthly, date(2024, time.March, 31), date(2024, time.April, 30)},
		{"monthly dec to jan", Monthly, date(2024, time.December, 10), date(2025, time.January, 10)},
		{"yearly", Yearly, date(2024, time.March, 15), date(2025, time.March, 15)},
		{"yearly feb29", Yearly, date(2024, time.February, 29), date(2025, time.February, 28)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextOccurrence(tc.interval, tc.anchor)
			if !got.Equal(tc.want) {
				t.Fatalf("NextOccurrence(%s, %s) = %s, want %s",
					tc.interval, tc.anchor.Format("2006-01-02"), got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
			}
		})
	}
}

func TestNextOccurrencePreservesTimeOfDay(t *testing.T) {
	anchor := time.Date(2024, time.January, 31, 9, 30, 12, 0, time.UTC)
	got := NextOccurrence(Monthly, anchor)
	want := time.Date(2024, time.February, 29, 9, 30, 12, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestAdvancePast(t *testing.T) {
	t.Run("single step", func(t *testing.T) {
		anchor := date(2024, time.February, 29)
		now := date(2024, time.February, 29)
		got := AdvancePast(Monthly, anchor, now)
		want := date(2024, time.March, 29)
		if !got.Equal(want) {
			t.Fatalf("got %s, want %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	})

	t.Run("skips missed occurrences without bursting", func(t *testing.T) {
		anchor := date(2024, time.January, 15)
		now := date(2024, time.May, 20)
		got := AdvancePast(Monthly, anchor, now)
		want := date(2024, time.June, 15)
		if !got.Equal(want) {
			t.Fatalf("got %s, want %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	})

	t.Run("keeps cadence for daily", func(t *testing.T) {
		anchor := date(2024, time.March, 1)
		now := date(2024, time.March, 10)
		got := AdvancePast(Daily, anchor, now)
		want := date(2024, time.March, 11)
		if !got.Equal(want) {
			t.Fatalf("got %s, want %s", got.Format("2006-01-02"), want.Format("2006-01-02"))
		}
	})
}

func TestCombineDateTime(t *testing.T) {
	d := date(2024, time.July, 4)
	clock := time.Date(2000, time.January, 1, 14, 25, 36, 0, time.UTC)
	got := CombineDateTime(d, clock)
	want := time.Date(2024, time.July, 4, 14, 25, 36, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %s, want %s", got, want)
	}
}
