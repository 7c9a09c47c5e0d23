package rotation

import (
	"testing"
	"time"
)

func d(month time.Month, day int) time.Time {
	return time.Date(2024, month, day, 0, 0, 0, 0, time.UTC)
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                       string
		aStart, aEnd, bStart, bEnd time.Time
		want                       bool
	}{
		{"disjoint", d(6, 1), d(6, 10), d(6, 11), d(6, 20), false},
		{"touching endpoints", d(6, 1), d(6, 30), d(6, 30), d(7, 10), true},
		{"contained", d(6, 1), d(6, 30), d(6, 10), d(6, 12), true},
		{"partial", d(6, 1), d(6, 30), d(6, 15), d(7, 15), true},
		{"identical", d(6, 1), d(6, 30), d(6, 1), d(6, 30), true},
		{"single day inside", d(6, 1), d(6, 30), d(6, 5), d(6, 5), true},
		{"far apart", d(1, 1), d(1, 31), d(12, 1), d(12, 31), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.aStart, tt.aEnd, tt.bStart, tt.bEnd); got != tt.want {
				t.Errorf("Overlaps = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.bStart, tt.bEnd, tt.aStart, tt.aEnd); got != tt.want {
				t.Errorf("Overlaps is not symmetric for %s", tt.name)
			}
		})
	}
}

func TestOverlaps_Reflexive(t *testing.T) {
	for _, r := range []DateRange{
		NewDateRange(d(6, 1), d(6, 30)),
		NewDateRange(d(2, 28), d(3, 1)),
		NewDateRange(d(7, 4), d(7, 4)),
	} {
		if !r.Overlaps(r) {
			t.Errorf("expected %v to overlap itself", r)
		}
	}
}

func TestOverlaps_IgnoresTimeOfDay(t *testing.T) {
	aEnd := time.Date(2024, 6, 10, 0, 30, 0, 0, time.UTC)
	bStart := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)
	if !Overlaps(d(6, 1), aEnd, bStart, d(6, 20)) {
		t.Error("same calendar day must overlap regardless of time")
	}

	// 22:00 in Santiago on June 10 is already June 11 in UTC.
	santiago := time.FixedZone("CLT", -4*3600)
	late := time.Date(2024, 6, 10, 22, 0, 0, 0, santiago)
	if Overlaps(d(6, 1), d(6, 10), late, d(6, 20)) {
		t.Error("expected comparison on the UTC calendar day")
	}
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 6, 10, 15, 4, 5, 6, time.UTC)
	if got := Day(in); !got.Equal(d(6, 10)) || got.Location() != time.UTC {
		t.Errorf("Day(%v) = %v", in, got)
	}
}

func TestDateRange_Valid(t *testing.T) {
	if !NewDateRange(d(6, 1), d(6, 2)).Valid() {
		t.Error("expected start < end to be valid")
	}
	if NewDateRange(d(6, 2), d(6, 2)).Valid() {
		t.Error("expected start == end to be invalid")
	}
	if NewDateRange(d(6, 3), d(6, 2)).Valid() {
		t.Error("expected start > end to be invalid")
	}
}

func TestDateRange_Contains(t *testing.T) {
	r := NewDateRange(d(6, 1), d(6, 30))
	for _, in := range []time.Time{d(6, 1), d(6, 15), d(6, 30).Add(23 * time.Hour)} {
		if !r.Contains(in) {
			t.Errorf("expected %v inside %v", in, r)
		}
	}
	for _, out := range []time.Time{d(5, 31), d(7, 1)} {
		if r.Contains(out) {
			t.Errorf("expected %v outside %v", out, r)
		}
	}
}

func TestMonthWindow(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		last  int
	}{
		{2024, time.February, 29},
		{2023, time.February, 28},
		{2024, time.June, 30},
		{2024, time.December, 31},
	}
	for _, tt := range tests {
		w := MonthWindow(tt.year, tt.month)
		if w.Start.Day() != 1 || w.Start.Month() != tt.month {
			t.Errorf("unexpected start %v", w.Start)
		}
		if w.End.Day() != tt.last || w.End.Month() != tt.month {
			t.Errorf("%d-%02d: expected last day %d, got %v", tt.year, tt.month, tt.last, w.End)
		}
	}
}

func TestFilterWindow(t *testing.T) {
	if _, ok := (AgendaFilter{}).Window(); ok {
		t.Error("expected no window without year")
	}
	w, ok := (AgendaFilter{Year: 2024, Month: 6}).Window()
	if !ok || !w.Start.Equal(d(6, 1)) || !w.End.Equal(d(6, 30)) {
		t.Errorf("unexpected month window %v", w)
	}
	w, ok = (InstitutionFilter{Year: 2024}).Window()
	if !ok || !w.Start.Equal(d(1, 1)) || !w.End.Equal(d(12, 31)) {
		t.Errorf("unexpected year window %v", w)
	}
}
