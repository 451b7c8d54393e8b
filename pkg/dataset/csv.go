package dataset

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// utf8BOM is stripped from the first header cell; spreadsheet exports add it.
const utf8BOM = "\ufeff"

// ParseCSV reads a comma-separated sensor log. The first record is the header.
func ParseCSV(r io.Reader) ([]types.Reading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid("no header row")
	}
	if err != nil {
		return nil, invalid("read header: %v", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	// First occurrence of a column name wins.
	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if seen[name] {
			continue
		}
		seen[name] = true
		columns[i] = name
	}

	var readings []types.Reading
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid("line %d: %v", line, err)
		}

		var rd types.Reading
		for i, cell := range rec {
			if columns[i] == "" {
				continue
			}
			if err := setField(&rd, columns[i], cell); err != nil {
				return nil, invalid("line %d: %v", line, err)
			}
		}
		readings = append(readings, rd)
	}
	return readings, nil
}
