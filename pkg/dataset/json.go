package dataset

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// ParseJSON reads an array of row objects, e.g.
//
//	[{"time": "08:00", "temp": 25, "target_temp": 20}, {"runtime": 150}]
//
// Values may be numbers, booleans, numeric strings or null. The time column
// accepts strings and numbers.
func ParseJSON(r io.Reader) ([]types.Reading, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, invalid("read body: %v", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, invalid("expected a JSON array of rows")
	}

	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, invalid("decode rows: %v", err)
	}

	readings := make([]types.Reading, 0, len(rows))
	for i, row := range rows {
		if row == nil {
			return nil, invalid("row %d: expected an object", i)
		}
		var rd types.Reading
		for column, raw := range row {
			if !knownColumn(column) {
				continue
			}
			cell, err := jsonCell(raw)
			if err != nil {
				return nil, invalid("row %d: column %q: %v", i, column, err)
			}
			if err := setField(&rd, column, cell); err != nil {
				return nil, invalid("row %d: %v", i, err)
			}
		}
		readings = append(readings, rd)
	}
	return readings, nil
}

// jsonCell converts one JSON value to the textual cell form setField expects.
// null becomes the empty (absent) cell.
func jsonCell(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", errUnsupportedValue
	}
}
