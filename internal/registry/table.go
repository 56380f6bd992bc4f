// Table catalog: named time-series tables and their compression policy
package registry

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// TimestampBytes is the encoded size of a row timestamp.
	TimestampBytes = 8
	// FieldBytes is the encoded size of one float32 field.
	FieldBytes = 4
)

// ErrorBound is the relative error a table tolerates on its fields, in
// percent. The zero value is lossless.
type ErrorBound struct {
	Percent float64
}

// Lossless reports whether the bound allows no error at all.
func (b ErrorBound) Lossless() bool { return b.Percent == 0 }

// Relative returns the bound as a fraction.
func (b ErrorBound) Relative() float64 { return b.Percent / 100 }

// String renders the bound the way the catalog spells it.
func (b ErrorBound) String() string {
	if b.Lossless() {
		return "lossless"
	}
	return strconv.FormatFloat(b.Percent, 'f', -1, 64) + "%"
}

// ParseErrorBound parses "lossless" or a percentage such as "5%".
func ParseErrorBound(s string) (ErrorBound, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "lossless") {
		return ErrorBound{}, nil
	}
	if !strings.HasSuffix(s, "%") {
		return ErrorBound{}, fmt.Errorf("error bound %q: want \"lossless\" or a percentage", s)
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return ErrorBound{}, fmt.Errorf("error bound %q: %w", s, err)
	}
	if pct < 0 || pct >= 100 {
		return ErrorBound{}, fmt.Errorf("error bound %q: must be in [0%%, 100%%)", s)
	}
	return ErrorBound{Percent: pct}, nil
}

// Table is a logical time-series table. Fields are float32 columns, tags are
// string columns that identify a series.
type Table struct {
	Name       string
	ErrorBound ErrorBound
	Tags       []string
	Fields     []string
}

// BytesPerRow is the uncompressed size of one row: a timestamp plus every field.
// Tags are not counted.
func (t Table) BytesPerRow() uint64 {
	return TimestampBytes + FieldBytes*uint64(len(t.Fields))
}

// DefaultTags are the tag columns of the wind turbine schema.
var DefaultTags = []string{"park_id", "windmill_id"}

// DefaultFields are the field columns of the wind turbine schema.
var DefaultFields = []string{
	"wind_speed",
	"pitch_angle",
	"rotor_speed",
	"active_power",
	"cos_nacelle_dir",
	"sin_nacelle_dir",
	"cos_wind_dir",
	"sin_wind_dir",
	"cor_nacelle_direction",
	"cor_wind_direction",
	"generator_speed",
	"ambient_temperature",
}
