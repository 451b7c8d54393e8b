// Package dataset turns tabular sensor logs into []types.Reading.
//
// ParseCSV reads a header row followed by data rows. Recognised columns are
// time, temp, target_temp, runtime and occupancy (case-sensitive); any other
// column is ignored and any missing column simply leaves that field nil on
// every reading. Empty cells and NA markers such as NA, N/A, null, None and
// NaN are treated as absent values.
//
// ParseJSON accepts an array of objects keyed by the same column names.
//
// Input that cannot be read as rows at all (empty file, ragged rows, broken
// quoting, non-numeric or infinite measurements, a JSON document that is not an array of
// objects) is rejected with an error wrapping ErrInvalidDataset.
package dataset
