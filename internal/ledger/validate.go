package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// Check is the outcome of validating one ledger file.
type Check struct {
	File   string
	Rows   int
	Errors []string
}

func (c *Check) errorf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the ledger has no problems.
func (c Check) Passed() bool { return len(c.Errors) == 0 }

// Validate checks the alert and statistics ledgers under dir: one row per
// (LOCATION, DATE), rows sorted by that key, and only known alert levels
// and indicator labels. Statistics ledgers may lead with the rows of one
// territory-wide location. Absent ledgers are not reported.
func Validate(dir string) ([]Check, error) {
	var out []Check

	alerts := filepath.Join(dir, AlertFile)
	if exists(alerts) {
		var rows []alertRow
		if err := readRows(alerts, &rows); err != nil {
			return nil, err
		}
		c := Check{File: AlertFile, Rows: len(rows)}
		checkKeys(&c, rows, domain.RecordKey.Less)
		for i, r := range rows {
			checkLabels(&c, i+2, r)
		}
		out = append(out, c)
	}

	stats, err := filepath.Glob(filepath.Join(dir, "*_STATS_*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list statistics ledgers: %w", err)
	}
	for _, path := range stats {
		var rows []statRow
		if err := readRows(path, &rows); err != nil {
			return nil, err
		}
		c := Check{File: filepath.Base(path), Rows: len(rows)}
		less := domain.RecordKey.Less
		if len(rows) > 0 {
			less = locationFirst(rows[0].Location)
		}
		checkKeys(&c, rows, less)
		out = append(out, c)
	}
	return out, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// checkKeys reports duplicate and out-of-order keys. Line numbers count the
// header as line 1.
func checkKeys[T keyed](c *Check, rows []T, less func(a, b domain.RecordKey) bool) {
	seen := make(map[domain.RecordKey]int, len(rows))
	for i, r := range rows {
		k := normalize(r.Key())
		if first, dup := seen[k]; dup {
			c.errorf("line %d: duplicate key %s %s (first at line %d)", i+2, k.Location, k.Date.Format("2006-01-02"), first)
			continue
		}
		seen[k] = i + 2
		if i > 0 && less(k, normalize(rows[i-1].Key())) {
			c.errorf("line %d: %s %s out of order", i+2, k.Location, k.Date.Format("2006-01-02"))
		}
	}
}

func checkLabels(c *Check, line int, r alertRow) {
	if !domain.AlertLevel(r.Alert).Valid() {
		c.errorf("line %d: unknown alert level %q", line, r.Alert)
	}
	for ind, label := range map[domain.Indicator]string{
		domain.Vegetation:         r.Vegetation,
		domain.SoilMoisture:       r.SoilMoisture,
		domain.Evapotranspiration: r.Evapotranspiration,
		domain.Precipitation:      r.Precipitation,
	} {
		if label == domain.NotProcessed {
			continue
		}
		if _, err := ind.ParseLabel(label); err != nil {
			c.errorf("line %d: %v", line, err)
		}
	}
}
