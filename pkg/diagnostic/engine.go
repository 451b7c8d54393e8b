package diagnostic

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/hvacdiag/hvacdiag/pkg/dataset"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// RepeatedSuffix is appended to the notes of every issue whose category
// occurs more than once in a report.
const RepeatedSuffix = " (Repeated issue)"

// ErrInvalidDataset is returned when the input cannot be read as rows.
var ErrInvalidDataset = dataset.ErrInvalidDataset

// ErrUnknownSeverity means a rule produced a severity outside High, Medium
// and Low. It indicates a bug in the rule table, not bad input.
var ErrUnknownSeverity = errors.New("diagnostic: unknown severity")

// errNoCapacity means issues were found but the worst-case cost is zero,
// which the aggregation formula rules out.
var errNoCapacity = errors.New("diagnostic: issues present but no rows to score against")

// Analyze runs the rule table over readings and builds the report.
// Missing fields on a reading only suppress the rules that need them.
func Analyze(readings []types.Reading) (types.Report, error) {
	return analyze(defaultRules, readings)
}

// AnalyzeCSV parses a CSV sensor log and analyzes it.
func AnalyzeCSV(r io.Reader) (types.Report, error) {
	readings, err := dataset.ParseCSV(r)
	if err != nil {
		return types.Report{}, err
	}
	return Analyze(readings)
}

// AnalyzeJSON parses a JSON array of rows and analyzes it.
func AnalyzeJSON(r io.Reader) (types.Report, error) {
	readings, err := dataset.ParseJSON(r)
	if err != nil {
		return types.Report{}, err
	}
	return Analyze(readings)
}

func analyze(rules []rule, readings []types.Reading) (types.Report, error) {
	issues := make([]types.Issue, 0)
	var wasted float64
	for _, r := range readings {
		issues = append(issues, detect(rules, r)...)
		if r.Occupancy != nil && *r.Occupancy == 0 {
			wasted += runtimeOrZero(r)
		}
	}
	if math.IsInf(wasted, 0) || math.IsNaN(wasted) {
		return types.Report{}, fmt.Errorf("%w: unoccupied runtime does not sum to a finite value", ErrInvalidDataset)
	}

	totalCost, maxCost := 0, 0
	for _, iss := range issues {
		totalCost += iss.Cost
		if iss.Cost > maxCost {
			maxCost = iss.Cost
		}
	}
	if len(issues) == 0 {
		maxCost = defaultMaxCost
	}
	if len(issues) > 0 && len(readings)*maxCost == 0 {
		return types.Report{}, errNoCapacity
	}

	score := efficiencyScore(observedWastePct(totalCost, maxCost, len(readings)))

	markRepeated(issues)
	if err := sortBySeverity(issues); err != nil {
		return types.Report{}, err
	}

	return types.Report{
		Issues:          issues,
		EfficiencyScore: score,
		TotalCost:       totalCost,
		OccupancyWasted: wasted,
		RowCount:        len(readings),
	}, nil
}

// markRepeated appends RepeatedSuffix to every issue whose category occurs
// more than once. Counts are collected first, then notes are rewritten.
func markRepeated(issues []types.Issue) {
	counts := make(map[types.Category]int)
	for _, iss := range issues {
		counts[iss.Issue]++
	}
	for i := range issues {
		if counts[issues[i].Issue] > 1 {
			issues[i].Notes += RepeatedSuffix
		}
	}
}

// severityRank orders severities High < Medium < Low.
func severityRank(s types.Severity) (int, bool) {
	switch s {
	case types.SeverityHigh:
		return 0, true
	case types.SeverityMedium:
		return 1, true
	case types.SeverityLow:
		return 2, true
	default:
		return 0, false
	}
}

// sortBySeverity stably sorts issues by severity rank. Detection order is
// kept within a rank.
func sortBySeverity(issues []types.Issue) error {
	for _, iss := range issues {
		if _, ok := severityRank(iss.Severity); !ok {
			return fmt.Errorf("%w %q on %s issue", ErrUnknownSeverity, iss.Severity, iss.Issue)
		}
	}
	sort.SliceStable(issues, func(i, j int) bool {
		ri, _ := severityRank(issues[i].Severity)
		rj, _ := severityRank(issues[j].Severity)
		return ri < rj
	})
	return nil
}
