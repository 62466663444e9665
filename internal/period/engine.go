// Package period decides which reporting units a run may process given
// how complete the incoming data is.
package period

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// DefaultWait is how long a short final unit is waited for before it is
// processed anyway.
const DefaultWait = 15 * 24 * time.Hour

// State is the outcome of evaluating one source over a window.
type State int

const (
	AwaitingData State = iota
	ReadyFull
	ReadyPartial
	NotReady
)

func (s State) String() string {
	switch s {
	case ReadyFull:
		return "ready_full"
	case ReadyPartial:
		return "ready_partial"
	case NotReady:
		return "not_ready"
	default:
		return "awaiting_data"
	}
}

// Window is a processing period [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window covers no time.
func (w Window) Empty() bool { return !w.Start.Before(w.End) }

func (w Window) String() string {
	return w.Start.Format("2006-01-02") + "/" + w.End.Format("2006-01-02")
}

// Source reports how many inputs are available and expected per unit.
type Source interface {
	Name() string
	Kind() domain.SlotKind
	Count(unit domain.Slot) (available, expected int, err error)
}

// Decision is the engine's verdict for one source.
type Decision struct {
	Source    string
	State     State
	Window    Window
	Dropped   []domain.Slot
	Gaps      []domain.Slot
	Stale     bool
	Available int
	Expected  int
}

// Proceed reports whether the run may continue.
func (d Decision) Proceed() bool {
	return d.State == ReadyFull || d.State == ReadyPartial
}

// Engine evaluates sources against a window.
type Engine struct {
	clock  clockwork.Clock
	wait   time.Duration
	logger *slog.Logger
}

// NewEngine returns an engine waiting up to wait for late data.
func NewEngine(clock clockwork.Clock, wait time.Duration, logger *slog.Logger) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{clock: clock, wait: wait, logger: logger}
}

// Evaluate runs the availability state machine for src over w. Only the
// last unit of the window decides the outcome; incomplete earlier units are
// reported as gaps and processed with whatever data exists.
func (e *Engine) Evaluate(src Source, w Window) (Decision, error) {
	d := Decision{Source: src.Name(), State: AwaitingData, Window: w}
	units := domain.SlotsBetween(w.Start, w.End, src.Kind())
	if len(units) == 0 {
		d.State = NotReady
		return d, nil
	}

	for _, u := range units[:len(units)-1] {
		avail, exp, err := src.Count(u)
		if err != nil {
			return d, fmt.Errorf("count %s %s: %w", src.Name(), u, err)
		}
		if avail < exp {
			d.Gaps = append(d.Gaps, u)
		}
	}
	if len(d.Gaps) > 0 {
		e.logger.Warn("incomplete units inside period", "source", src.Name(), "units", fmt.Sprint(d.Gaps))
	}

	last := units[len(units)-1]
	avail, exp, err := src.Count(last)
	if err != nil {
		return d, fmt.Errorf("count %s %s: %w", src.Name(), last, err)
	}
	d.Available, d.Expected = avail, exp

	elapsed := e.clock.Now().Sub(last.End())
	switch {
	case avail >= exp:
		d.State = ReadyFull
	case elapsed > e.wait:
		d.State = ReadyFull
		d.Stale = true
		e.logger.Warn("processing incomplete unit after wait threshold",
			"source", src.Name(), "unit", last, "available", avail, "expected", exp, "elapsed", elapsed.String())
	case len(units) > 1:
		d.State = ReadyPartial
		d.Dropped = []domain.Slot{last}
		d.Window.End = last.Start()
		e.logger.Info("last unit incomplete, rolling period back",
			"source", src.Name(), "unit", last, "available", avail, "expected", exp)
	default:
		d.State = NotReady
		e.logger.Info("unit incomplete, waiting for more data",
			"source", src.Name(), "unit", last, "available", avail, "expected", exp)
	}
	return d, nil
}

// Combine merges per-source decisions, keeping the most restrictive: any
// NotReady stops the run, otherwise the earliest end wins.
func Combine(w Window, decisions ...Decision) Decision {
	out := Decision{Source: "combined", State: ReadyFull, Window: w}
	for _, d := range decisions {
		if d.State == NotReady || d.State == AwaitingData {
			out.State = NotReady
			out.Source = d.Source
			return out
		}
		if d.Window.End.Before(out.Window.End) {
			out.Window.End = d.Window.End
		}
		if d.State == ReadyPartial {
			out.State = ReadyPartial
		}
		out.Stale = out.Stale || d.Stale
		out.Dropped = append(out.Dropped, d.Dropped...)
		out.Gaps = append(out.Gaps, d.Gaps...)
	}
	if out.Window.Empty() {
		out.State = NotReady
	}
	return out
}
