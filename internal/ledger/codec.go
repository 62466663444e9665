package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/drought-monitor/internal/domain"
)

// Float2 renders with two decimals. NaN is written as an empty cell.
type Float2 float64

func (f Float2) MarshalCSV() (string, error) {
	if math.IsNaN(float64(f)) {
		return "", nil
	}
	return strconv.FormatFloat(float64(f), 'f', 2, 64), nil
}

func (f *Float2) UnmarshalCSV(s string) error {
	v, err := parseFloat(s, '.')
	if err != nil {
		return err
	}
	*f = Float2(v)
	return nil
}

// CommaFloat reads decimal-comma numbers ("-1,23") as found in station feeds.
type CommaFloat float64

func (f CommaFloat) MarshalCSV() (string, error) {
	if math.IsNaN(float64(f)) {
		return "", nil
	}
	return strings.Replace(strconv.FormatFloat(float64(f), 'f', -1, 64), ".", ",", 1), nil
}

func (f *CommaFloat) UnmarshalCSV(s string) error {
	v, err := parseFloat(s, ',')
	if err != nil {
		return err
	}
	*f = CommaFloat(v)
	return nil
}

func parseFloat(s string, decimal byte) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na":
		return math.NaN(), nil
	}
	if decimal == ',' {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// Date is a calendar day written as YYYY-MM-DD. DD/MM/YYYY is accepted on
// read for ledgers edited by hand.
type Date time.Time

var dateLayouts = []string{"2006-01-02", "02/01/2006"}

func (d Date) MarshalCSV() (string, error) {
	return time.Time(d).Format(dateLayouts[0]), nil
}

func (d *Date) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*d = Date(t)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

// Time converts back to time.Time.
func (d Date) Time() time.Time { return time.Time(d) }

// Month is a YYYYMM station-feed month.
type Month domain.Slot

func (m Month) MarshalCSV() (string, error) {
	return fmt.Sprintf("%04d%02d", m.Year, int(m.Month)), nil
}

func (m *Month) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	t, err := time.Parse("200601", s)
	if err != nil {
		return fmt.Errorf("invalid month %q", s)
	}
	*m = Month(domain.SlotOf(t))
	return nil
}

// Slot converts back to a monthly slot.
func (m Month) Slot() domain.Slot { return domain.Slot(m) }
