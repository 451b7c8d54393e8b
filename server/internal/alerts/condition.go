package alerts

import (
	"strconv"
	"strings"

	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// evalCondition evaluates a rule condition string against a run.
//
// Supported expressions (field operator value):
//
//	efficiency_score < 60
//	total_cost > 500
//	occupancy_wasted > 120
//	issue_count >= 10
//	high_issues > 0
//	medium_issues > 5
//	row_count < 4
//	grade == poor
//	grade != good
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, run types.Run, sum diagnostic.Summary) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "grade" {
		switch op {
		case "==":
			return sum.Grade == rhs, float64(run.Report.EfficiencyScore)
		case "!=":
			return sum.Grade != rhs, float64(run.Report.EfficiencyScore)
		}
		return false, 0
	}

	v, ok := numericField(field, run, sum)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the run.
func numericField(field string, run types.Run, sum diagnostic.Summary) (float64, bool) {
	switch field {
	case "efficiency_score":
		return float64(run.Report.EfficiencyScore), true
	case "total_cost":
		return float64(run.Report.TotalCost), true
	case "occupancy_wasted":
		return run.Report.OccupancyWasted, true
	case "issue_count":
		return float64(sum.IssueCount), true
	case "high_issues":
		return float64(sum.HighCount), true
	case "medium_issues":
		return float64(sum.MediumCount), true
	case "row_count":
		return float64(run.Report.RowCount), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
