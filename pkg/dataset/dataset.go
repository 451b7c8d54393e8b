package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// ErrInvalidDataset reports input that cannot be interpreted as tabular rows.
var ErrInvalidDataset = errors.New("invalid dataset")

var (
	errUnsupportedValue = errors.New("nested values are not supported")
	errNotFinite        = errors.New("infinite values are not supported")
)

// Column names recognised in CSV headers and JSON keys.
const (
	ColumnTime       = "time"
	ColumnTemp       = "temp"
	ColumnTargetTemp = "target_temp"
	ColumnRuntime    = "runtime"
	ColumnOccupancy  = "occupancy"
)

func knownColumn(name string) bool {
	switch name {
	case ColumnTime, ColumnTemp, ColumnTargetTemp, ColumnRuntime, ColumnOccupancy:
		return true
	}
	return false
}

// invalid wraps ErrInvalidDataset with a formatted reason.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDataset, fmt.Sprintf(format, args...))
}

// naMarkers are the cell values read as missing, besides the empty cell.
// The set matches the default NA strings of common dataframe tooling.
var naMarkers = map[string]struct{}{
	"NA": {}, "N/A": {}, "n/a": {}, "<NA>": {},
	"NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"null": {}, "NULL": {}, "None": {},
	"#N/A": {}, "#N/A N/A": {}, "#NA": {},
	"1.#IND": {}, "-1.#IND": {}, "1.#QNAN": {}, "-1.#QNAN": {},
}

// parseNumber parses a measurement cell. Empty cells and NA markers are
// absent (nil, nil). Booleans map to 1 and 0 so occupancy columns written as
// true/false work. Infinite values are rejected.
func parseNumber(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if _, ok := naMarkers[s]; ok {
		return nil, nil
	}
	switch strings.ToLower(s) {
	case "true":
		v := 1.0
		return &v, nil
	case "false":
		v := 0.0
		return &v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) {
		return nil, nil
	}
	if math.IsInf(v, 0) {
		return nil, errNotFinite
	}
	return &v, nil
}

// setField stores value into the reading field named by column.
// Unknown columns are ignored.
func setField(r *types.Reading, column, value string) error {
	if column == ColumnTime {
		r.Time = strings.TrimSpace(value)
		return nil
	}

	var dst **float64
	switch column {
	case ColumnTemp:
		dst = &r.Temp
	case ColumnTargetTemp:
		dst = &r.TargetTemp
	case ColumnRuntime:
		dst = &r.Runtime
	case ColumnOccupancy:
		dst = &r.Occupancy
	default:
		return nil
	}

	v, err := parseNumber(value)
	if errors.Is(err, errNotFinite) {
		return fmt.Errorf("column %q: %q is not finite", column, value)
	}
	if err != nil {
		return fmt.Errorf("column %q: %q is not numeric", column, value)
	}
	*dst = v
	return nil
}
