package diagnostic

import (
	"fmt"
	"math"
	"strconv"

	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// Rule thresholds.
const (
	deviationThreshold     = 2.0   // °C; above this a deviation is reported
	highDeviationThreshold = 4.0   // °C; above this the deviation is High
	maxRuntimeMinutes      = 120.0 // runtime above this per interval is excessive
)

// Unit costs per issue.
const (
	costHigh       = 60
	costMedium     = 40
	costUnoccupied = 20
)

// rule is one entry of the rule table. Match decides whether the reading
// triggers the rule; Build is only called when Match returned true.
type rule struct {
	Category types.Category
	Match    func(r types.Reading) bool
	Build    func(r types.Reading) types.Issue
}

// defaultRules is the ordered rule table applied to every reading.
var defaultRules = []rule{
	{
		Category: types.CategoryTemperatureDeviation,
		Match: func(r types.Reading) bool {
			return r.Temp != nil && r.TargetTemp != nil &&
				math.Abs(*r.Temp-*r.TargetTemp) > deviationThreshold
		},
		Build: buildDeviation,
	},
	{
		Category: types.CategoryExcessiveRuntime,
		Match: func(r types.Reading) bool {
			return r.Runtime != nil && *r.Runtime > maxRuntimeMinutes
		},
		Build: func(r types.Reading) types.Issue {
			return types.Issue{
				Issue:    types.CategoryExcessiveRuntime,
				Time:     r.TimeLabel(),
				Evidence: minutes(*r.Runtime),
				Cost:     costHigh,
				Severity: types.SeverityHigh,
				Notes:    "HVAC ran unusually long",
				Action:   types.ActionScheduleTechnician,
			}
		},
	},
	{
		Category: types.CategoryUnnecessaryRuntime,
		Match: func(r types.Reading) bool {
			return r.Occupancy != nil && *r.Occupancy == 0 && runtimeOrZero(r) > 0
		},
		Build: func(r types.Reading) types.Issue {
			return types.Issue{
				Issue:    types.CategoryUnnecessaryRuntime,
				Time:     r.TimeLabel(),
				Evidence: minutes(*r.Runtime),
				Cost:     costUnoccupied,
				Severity: types.SeverityMedium,
				Notes:    "HVAC running while space unoccupied",
				Action:   types.ActionCheckYourself,
			}
		},
	},
}

func buildDeviation(r types.Reading) types.Issue {
	iss := types.Issue{
		Issue:    types.CategoryTemperatureDeviation,
		Time:     r.TimeLabel(),
		Evidence: fmt.Sprintf("%s°C vs %s°C", formatNumber(*r.Temp), formatNumber(*r.TargetTemp)),
		Severity: types.SeverityMedium,
		Cost:     costMedium,
		Notes:    "Actual temperature deviates from setpoint",
		Action:   types.ActionCheckYourself,
	}
	if math.Abs(*r.Temp-*r.TargetTemp) > highDeviationThreshold {
		iss.Severity = types.SeverityHigh
		iss.Cost = costHigh
		iss.Action = types.ActionScheduleTechnician
	}
	return iss
}

// detect applies every rule to r in table order.
func detect(rules []rule, r types.Reading) []types.Issue {
	var out []types.Issue
	for _, rl := range rules {
		if rl.Match(r) {
			out = append(out, rl.Build(r))
		}
	}
	return out
}

func runtimeOrZero(r types.Reading) float64 {
	if r.Runtime == nil || math.IsNaN(*r.Runtime) {
		return 0
	}
	return *r.Runtime
}

func minutes(v float64) string {
	return formatNumber(v) + " min"
}

// formatNumber renders v in its shortest exact form: 25 -> "25", 21.5 -> "21.5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
