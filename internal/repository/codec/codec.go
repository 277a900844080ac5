// Package codec holds the lenient JSON field types used by stored documents.
// Documents written by older clients carry numbers as text, prices with a
// decimal comma and timestamps as either epoch milliseconds or RFC 3339.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var null = []byte("null")

// unquote returns the textual content of a JSON scalar.
func unquote(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return "", false, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		return strings.TrimSpace(s), s != "", nil
	}
	return string(b), true, nil
}

// Decimal is a money amount stored as a JSON number.
type Decimal struct {
	decimal.Decimal
}

// NewDecimal wraps d.
func NewDecimal(d decimal.Decimal) Decimal { return Decimal{Decimal: d} }

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	s, ok, err := unquote(b)
	if err != nil {
		return err
	}
	if !ok || s == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "R$")
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	d.Decimal = v
	return nil
}

// Int is a count stored as a JSON number that also accepts numeric text.
type Int int

func (i *Int) UnmarshalJSON(b []byte) error {
	s, ok, err := unquote(b)
	if err != nil {
		return err
	}
	if !ok || s == "" {
		*i = 0
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*i = Int(n)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid integer %q", s)
	}
	*i = Int(math.Trunc(f))
	return nil
}

// Millis is an instant stored as Unix milliseconds.
type Millis struct {
	time.Time
}

// NewMillis wraps t.
func NewMillis(t time.Time) Millis { return Millis{Time: t} }

func (m Millis) MarshalJSON() ([]byte, error) {
	if m.Time.IsZero() {
		return null, nil
	}
	return []byte(strconv.FormatInt(m.Time.UnixMilli(), 10)), nil
}

func (m *Millis) UnmarshalJSON(b []byte) error {
	s, ok, err := unquote(b)
	if err != nil {
		return err
	}
	if !ok || s == "" {
		m.Time = time.Time{}
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		m.Time = time.UnixMilli(n)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		m.Time = time.UnixMilli(int64(f))
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	m.Time = t
	return nil
}
