package pricing

import (
	"bytes"
	"math"
	"strconv"
	"strings"
)

// Number decodes a JSON number, a numeric string or null into a float64.
// Anything else decodes to 0 instead of failing the whole payload, because
// providers routinely send "", "N/A" or nested garbage in price fields.
// "NaN" and "Infinity" also decode to 0.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !IsFinite(f) {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float returns the value as a float64.
func (n Number) Float() float64 {
	return float64(n)
}

// ID decodes either a JSON string or a JSON number into a string.
// TCGplayer product ids arrive as both depending on the provider.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			*id = ""
			return nil
		}
		*id = ID(s)
		return nil
	}
	*id = ID(string(b))
	return nil
}

func (id ID) String() string {
	return string(id)
}
