package domain

import (
	"fmt"
	"time"
)

// SlotKind distinguishes monthly from ten-day (decade) reporting units.
type SlotKind int

const (
	Monthly SlotKind = iota
	Decadal
)

// Suffix returns the archive folder token for the kind.
func (k SlotKind) Suffix() string {
	if k == Decadal {
		return "DECADE"
	}
	return "MONTH"
}

// Slot is a temporal reporting unit: a calendar month, or one of its three
// decades (days 1-10, 11-20, 21-end). Decade is 0 for monthly slots.
type Slot struct {
	Year   int
	Month  time.Month
	Decade int
}

// MonthSlot returns the monthly slot for year and month.
func MonthSlot(year int, month time.Month) Slot {
	return Slot{Year: year, Month: month}
}

// DecadeSlot returns the decade slot d (1..3) of year and month.
func DecadeSlot(year int, month time.Month, d int) Slot {
	return Slot{Year: year, Month: month, Decade: d}
}

// SlotOf returns the monthly slot containing t.
func SlotOf(t time.Time) Slot {
	return MonthSlot(t.Year(), t.Month())
}

// DecadeOf returns the decade slot containing t.
func DecadeOf(t time.Time) Slot {
	d := 1 + (t.Day()-1)/10
	if d > 3 {
		d = 3
	}
	return DecadeSlot(t.Year(), t.Month(), d)
}

// Kind reports whether the slot is monthly or decadal.
func (s Slot) Kind() SlotKind {
	if s.Decade > 0 {
		return Decadal
	}
	return Monthly
}

// Less orders slots by (year, month, decade).
func (s Slot) Less(o Slot) bool {
	if s.Year != o.Year {
		return s.Year < o.Year
	}
	if s.Month != o.Month {
		return s.Month < o.Month
	}
	return s.Decade < o.Decade
}

// SameCalendarSlot reports whether s and o fall on the same month (and
// decade) of possibly different years.
func (s Slot) SameCalendarSlot(o Slot) bool {
	return s.Month == o.Month && s.Decade == o.Decade
}

// Start is the first instant of the slot (UTC).
func (s Slot) Start() time.Time {
	day := 1
	if s.Decade > 0 {
		day = 1 + (s.Decade-1)*10
	}
	return time.Date(s.Year, s.Month, day, 0, 0, 0, 0, time.UTC)
}

// End is the exclusive end of the slot.
func (s Slot) End() time.Time {
	return s.Next().Start()
}

// Days returns the number of days covered by the slot.
func (s Slot) Days() int {
	return int(s.End().Sub(s.Start()).Hours() / 24)
}

// Next returns the slot immediately after s, of the same kind.
func (s Slot) Next() Slot {
	if s.Decade > 0 && s.Decade < 3 {
		return DecadeSlot(s.Year, s.Month, s.Decade+1)
	}
	t := time.Date(s.Year, s.Month+1, 1, 0, 0, 0, 0, time.UTC)
	if s.Decade > 0 {
		return DecadeSlot(t.Year(), t.Month(), 1)
	}
	return SlotOf(t)
}

// Prev returns the slot immediately before s, of the same kind.
func (s Slot) Prev() Slot {
	if s.Decade > 1 {
		return DecadeSlot(s.Year, s.Month, s.Decade-1)
	}
	t := time.Date(s.Year, s.Month-1, 1, 0, 0, 0, 0, time.UTC)
	if s.Decade > 0 {
		return DecadeSlot(t.Year(), t.Month(), 3)
	}
	return SlotOf(t)
}

// Code renders the slot as used in archive file names: 202403M, 202403D2.
func (s Slot) Code() string {
	if s.Decade > 0 {
		return fmt.Sprintf("%04d%02dD%d", s.Year, int(s.Month), s.Decade)
	}
	return fmt.Sprintf("%04d%02dM", s.Year, int(s.Month))
}

func (s Slot) String() string { return s.Code() }

// SlotsBetween lists the slots of kind covering [start, end).
func SlotsBetween(start, end time.Time, kind SlotKind) []Slot {
	var out []Slot
	s := SlotOf(start)
	if kind == Decadal {
		s = DecadeOf(start)
	}
	for s.Start().Before(end) {
		out = append(out, s)
		s = s.Next()
	}
	return out
}
