package dutchsoils

import (
	"math"
	"strconv"
	"strings"
)

// Measure is a measured quantity that may be missing. Missing values are NaN
// in memory, empty in CSV and null in JSON.
type Measure float64

// Missing is the missing measure.
func Missing() Measure { return Measure(math.NaN()) }

// Valid reports whether the measure has a value.
func (m Measure) Valid() bool { return !math.IsNaN(float64(m)) }

// Float returns the value as float64 (NaN when missing).
func (m Measure) Float() float64 { return float64(m) }

// Value returns the value, or nil when missing.
func (m Measure) Value() any {
	if !m.Valid() {
		return nil
	}
	return float64(m)
}

// String formats the value with the shortest representation that parses
// back to the same float64.
func (m Measure) String() string {
	if !m.Valid() {
		return ""
	}
	return strconv.FormatFloat(float64(m), 'f', -1, 64)
}

// MarshalText implements encoding.TextMarshaler.
func (m Measure) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Measure) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || strings.EqualFold(s, "nan") {
		*m = Missing()
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*m = Measure(f)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return []byte("null"), nil
	}
	return []byte(m.String()), nil
}
