package period_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/drought-monitor/internal/archive"
	"github.com/couchcryptid/drought-monitor/internal/domain"
	"github.com/couchcryptid/drought-monitor/internal/period"
	"github.com/couchcryptid/drought-monitor/internal/raster"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fakeSource reports fixed availability per unit.
type fakeSource struct {
	counts map[domain.Slot][2]int
}

func (f fakeSource) Name() string          { return "fake" }
func (f fakeSource) Kind() domain.SlotKind { return domain.Monthly }
func (f fakeSource) Count(u domain.Slot) (int, int, error) {
	c, ok := f.counts[u]
	if !ok {
		return 0, 1, nil
	}
	return c[0], c[1], nil
}

func TestEngineEvaluate(t *testing.T) {
	jan, feb, mar := domain.MonthSlot(2024, time.January), domain.MonthSlot(2024, time.February), domain.MonthSlot(2024, time.March)
	twoMonths := period.Window{Start: jan.Start(), End: mar.Start()}
	oneMonth := period.Window{Start: feb.Start(), End: mar.Start()}

	tests := []struct {
		name    string
		now     time.Time
		window  period.Window
		counts  map[domain.Slot][2]int
		state   period.State
		end     time.Time
		dropped []domain.Slot
		stale   bool
	}{
		{
			name:   "complete last unit",
			now:    date(2024, 3, 2),
			window: twoMonths,
			counts: map[domain.Slot][2]int{jan: {31, 31}, feb: {29, 29}},
			state:  period.ReadyFull,
			end:    mar.Start(),
		},
		{
			name:    "short last unit rolls back one month",
			now:     date(2024, 3, 5),
			window:  twoMonths,
			counts:  map[domain.Slot][2]int{jan: {31, 31}, feb: {25, 29}},
			state:   period.ReadyPartial,
			end:     feb.Start(),
			dropped: []domain.Slot{feb},
		},
		{
			name:   "short single unit is not ready",
			now:    date(2024, 3, 5),
			window: oneMonth,
			counts: map[domain.Slot][2]int{feb: {25, 29}},
			state:  period.NotReady,
			end:    mar.Start(),
		},
		{
			name:   "stale override after wait threshold",
			now:    date(2024, 3, 20),
			window: oneMonth,
			counts: map[domain.Slot][2]int{feb: {25, 29}},
			state:  period.ReadyFull,
			end:    mar.Start(),
			stale:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := period.NewEngine(clockwork.NewFakeClockAt(tt.now), period.DefaultWait, slog.Default())
			d, err := e.Evaluate(fakeSource{counts: tt.counts}, tt.window)
			require.NoError(t, err)
			assert.Equal(t, tt.state, d.State)
			assert.Equal(t, tt.end, d.Window.End)
			assert.Equal(t, tt.dropped, d.Dropped)
			assert.Equal(t, tt.stale, d.Stale)
		})
	}
}

func TestEngineReportsGaps(t *testing.T) {
	jan, feb := domain.MonthSlot(2024, time.January), domain.MonthSlot(2024, time.February)
	e := period.NewEngine(clockwork.NewFakeClockAt(date(2024, 3, 2)), period.DefaultWait, slog.Default())
	d, err := e.Evaluate(fakeSource{counts: map[domain.Slot][2]int{jan: {0, 1}, feb: {1, 1}}},
		period.Window{Start: jan.Start(), End: feb.End()})
	require.NoError(t, err)
	assert.Equal(t, period.ReadyFull, d.State)
	assert.Equal(t, []domain.Slot{jan}, d.Gaps)
}

func TestCombineMostRestrictive(t *testing.T) {
	w := period.Window{Start: date(2024, 1, 1), End: date(2024, 3, 1)}
	full := period.Decision{Source: "a", State: period.ReadyFull, Window: w}
	partial := period.Decision{Source: "b", State: period.ReadyPartial,
		Window: period.Window{Start: w.Start, End: date(2024, 2, 1)}}

	got := period.Combine(w, full, partial)
	assert.Equal(t, period.ReadyPartial, got.State)
	assert.Equal(t, date(2024, 2, 1), got.Window.End)

	got = period.Combine(w, full, period.Decision{Source: "c", State: period.NotReady})
	assert.Equal(t, period.NotReady, got.State)
	assert.Equal(t, "c", got.Source)
	assert.False(t, got.Proceed())
}

func TestResolve(t *testing.T) {
	now := date(2024, 3, 18)
	hist := period.HistoryOf([]domain.Slot{domain.MonthSlot(2023, time.June), domain.MonthSlot(2024, time.January)})

	tests := []struct {
		name    string
		params  period.Params
		want    period.Window
		wantErr bool
	}{
		{
			name:   "auto continues after history",
			params: period.Params{Mode: domain.ModeAuto, History: hist, Now: now},
			want:   period.Window{Start: date(2024, 2, 1), End: date(2024, 3, 1)},
		},
		{
			name:   "auto without history takes previous month",
			params: period.Params{Mode: domain.ModeAuto, Now: now},
			want:   period.Window{Start: date(2024, 2, 1), End: date(2024, 3, 1)},
		},
		{
			name:    "manual requires both bounds",
			params:  period.Params{Mode: domain.ModeManual, Start: date(2024, 1, 1)},
			wantErr: true,
		},
		{
			name:    "indices rejects inverted bounds",
			params:  period.Params{Mode: domain.ModeIndices, Start: date(2024, 2, 1), End: date(2024, 1, 1)},
			wantErr: true,
		},
		{
			name:    "drought rejects a single bound",
			params:  period.Params{Mode: domain.ModeDrought, End: date(2024, 1, 1), History: hist},
			wantErr: true,
		},
		{
			name:   "drought defaults to history span",
			params: period.Params{Mode: domain.ModeDrought, History: hist},
			want:   period.Window{Start: date(2023, 6, 1), End: date(2024, 2, 1)},
		},
		{
			name:    "drought without history is critical",
			params:  period.Params{Mode: domain.ModeDrought},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := period.Resolve(tt.params)
			if tt.wantErr {
				var pe *domain.PeriodConfigError
				assert.True(t, errors.As(err, &pe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveAutoUpToDate(t *testing.T) {
	hist := period.HistoryOf([]domain.Slot{domain.MonthSlot(2024, time.February)})
	w, err := period.Resolve(period.Params{Mode: domain.ModeAuto, History: hist, Now: date(2024, 3, 18)})
	require.NoError(t, err)
	assert.True(t, w.Empty())
}

func TestStationSource(t *testing.T) {
	feb := domain.MonthSlot(2024, time.February)
	src := period.StationSource{
		Index:    "SPI",
		Stations: []string{"ALPHA", "BRAVO"},
		Series: map[string]map[domain.Slot]float64{
			"ALPHA": {feb: -0.4},
			"BRAVO": {feb.Prev(): 0.1},
		},
	}
	avail, exp, err := src.Count(feb)
	require.NoError(t, err)
	assert.Equal(t, 1, avail)
	assert.Equal(t, 2, exp)

	src.Stations = append(src.Stations, "CHARLIE")
	_, _, err = src.Count(feb)
	var mp *domain.MissingProductError
	require.True(t, errors.As(err, &mp))
	assert.Equal(t, []string{"CHARLIE"}, src.Missing())
}

func TestArchiveSources(t *testing.T) {
	st := raster.NewMemStore()
	arch := archive.New("arch")
	feb := domain.MonthSlot(2024, time.February)
	for d := 1; d <= 29; d++ {
		require.NoError(t, st.Save(arch.DailyPath("SWI", date(2024, 2, d)), raster.FromSingleBand(raster.Filled(1, 1, 0.5, raster.GeoRef{}))))
	}
	require.NoError(t, st.Save(arch.Path("VHI", "", feb), raster.FromSingleBand(raster.Filled(1, 1, 0.5, raster.GeoRef{}))))

	avail, exp, err := period.DailySource{Product: "SWI", Archive: arch, Lister: st}.Count(feb)
	require.NoError(t, err)
	assert.Equal(t, 29, avail)
	assert.Equal(t, 29, exp)

	vhi := period.CompositeSource{Product: "VHI", UnitKind: domain.Monthly, Archive: arch, Lister: st}
	avail, exp, err = vhi.Count(feb)
	require.NoError(t, err)
	assert.Equal(t, 1, avail)
	assert.Equal(t, 1, exp)
	avail, _, err = vhi.Count(feb.Next())
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
}
