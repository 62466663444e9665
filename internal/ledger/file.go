// Package ledger reads and writes the semicolon-separated CSV tables the
// pipeline produces and consumes: index statistics, drought alerts,
// correlation scores, station feeds and zone look-up tables.
//
// Ledgers are keyed by (LOCATION, DATE). Writes read the existing table,
// merge incoming rows over it and replace the file atomically.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// Separator is the field delimiter of every ledger.
const Separator = ';'

// rename is swapped in tests to simulate a locked target.
var rename = os.Rename

// readRows decodes path into out (a pointer to a slice of tagged structs).
// A missing or empty file yields no rows.
func readRows(path string, out any) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = Separator
	r.TrimLeadingSpace = true
	if err := gocsv.UnmarshalCSV(r, out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil
		}
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeRows encodes rows to path through a temporary file and rename. When
// the rename is refused, the target is removed and the rename retried once;
// a second failure is a *domain.ConcurrentWriteConflict.
func writeRows(path string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	w.Comma = Separator
	sw := gocsv.NewSafeCSVWriter(w)
	if err := gocsv.MarshalCSV(rows, sw); err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	sw.Flush()
	if err := sw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}

	err = rename(tmp.Name(), path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return &domain.ConcurrentWriteConflict{Path: path, Err: rmErr}
	}
	if err := rename(tmp.Name(), path); err != nil {
		return &domain.ConcurrentWriteConflict{Path: path, Err: err}
	}
	return nil
}

// keyed is a ledger row with an upsert key.
type keyed interface {
	Key() domain.RecordKey
}

// Upsert merges incoming over existing by key and returns the rows ordered
// by location then date. Applying the same incoming rows twice is a no-op.
func Upsert[T keyed](existing, incoming []T) []T {
	return upsertOrdered(existing, incoming, domain.RecordKey.Less)
}

func upsertOrdered[T keyed](existing, incoming []T, less func(a, b domain.RecordKey) bool) []T {
	byKey := make(map[domain.RecordKey]T, len(existing)+len(incoming))
	for _, r := range existing {
		byKey[normalize(r.Key())] = r
	}
	for _, r := range incoming {
		byKey[normalize(r.Key())] = r
	}
	keys := make([]domain.RecordKey, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = byKey[k]
	}
	return out
}

// locationFirst orders the rows of location ahead of every other location,
// then by location and date.
func locationFirst(location string) func(a, b domain.RecordKey) bool {
	return func(a, b domain.RecordKey) bool {
		if pa, pb := a.Location == location, b.Location == location; pa != pb {
			return pa
		}
		return a.Less(b)
	}
}

// normalize truncates the key date to its UTC day so equal dates compare
// equal as map keys.
func normalize(k domain.RecordKey) domain.RecordKey {
	t := k.Date.UTC()
	return domain.RecordKey{Location: k.Location, Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}
