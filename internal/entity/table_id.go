package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TableID identifies a physical table. Older documents carry it as a number
// or a numeric string; both decode to the same value.
type TableID int

// ParseTableID parses a decimal table number.
func ParseTableID(raw string) (TableID, error) {
	trimmed := strings.TrimSpace(raw)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		f, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, fmt.Errorf("invalid table id %q", raw)
		}
		n = int(f)
	}
	id := TableID(n)
	if !id.Valid() {
		return 0, fmt.Errorf("invalid table id %q", raw)
	}
	return id, nil
}

// Valid reports whether id names a real table.
func (id TableID) Valid() bool { return id > 0 }

func (id TableID) String() string { return strconv.Itoa(int(id)) }

func (id TableID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	var raw string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		raw = string(b)
	}
	v, err := ParseTableID(raw)
	if err != nil {
		return err
	}
	*id = v
	return nil
}
