package period

import (
	"time"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// History is the span of months already processed.
type History struct {
	First, Last domain.Slot
	OK          bool
}

// HistoryOf builds a History from an ordered slot list.
func HistoryOf(slots []domain.Slot) History {
	if len(slots) == 0 {
		return History{}
	}
	return History{First: slots[0], Last: slots[len(slots)-1], OK: true}
}

// Params are the inputs to window resolution. Zero Start/End mean unset.
type Params struct {
	Mode    domain.Mode
	Start   time.Time
	End     time.Time
	History History
	Now     time.Time
}

// Resolve chooses the processing window for a run. Misconfiguration returns
// *domain.PeriodConfigError. An AUTO window with nothing new is returned
// empty without error.
func Resolve(p Params) (Window, error) {
	hasStart, hasEnd := !p.Start.IsZero(), !p.End.IsZero()
	switch p.Mode {
	case domain.ModeAuto:
		end := domain.SlotOf(p.Now).Start()
		start := domain.SlotOf(end).Prev().Start()
		if p.History.OK {
			start = p.History.Last.Next().Start()
		}
		return Window{Start: start, End: end}, nil

	case domain.ModeManual, domain.ModeIndices:
		if !hasStart || !hasEnd {
			return Window{}, &domain.PeriodConfigError{Reason: "PERIOD_START and PERIOD_END are required in " + string(p.Mode) + " mode"}
		}
		return manual(p.Start, p.End)

	case domain.ModeDrought:
		switch {
		case hasStart && hasEnd:
			return manual(p.Start, p.End)
		case hasStart || hasEnd:
			return Window{}, &domain.PeriodConfigError{Reason: "PERIOD_START and PERIOD_END must be set together"}
		case !p.History.OK:
			return Window{}, &domain.PeriodConfigError{Reason: "no processed history to derive a period from"}
		}
		return Window{Start: p.History.First.Start(), End: p.History.Last.End()}, nil
	}
	return Window{}, &domain.PeriodConfigError{Reason: "unknown mode " + string(p.Mode)}
}

func manual(start, end time.Time) (Window, error) {
	w := Window{Start: start.UTC(), End: end.UTC()}
	if w.Empty() {
		return Window{}, &domain.PeriodConfigError{Reason: "PERIOD_START must be before PERIOD_END"}
	}
	return w, nil
}
