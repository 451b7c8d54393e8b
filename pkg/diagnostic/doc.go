// Package diagnostic is the HVAC scoring engine.
//
// rules.go holds the ordered rule table. Each rule is a category, a match
// predicate and an issue builder, evaluated against every reading in a fixed
// order: temperature deviation, excessive runtime, unnecessary runtime.
//
// score.go turns the detected issues into the efficiency score (0–100):
//
//	observed_waste = total_cost / (row_count * max_cost) * 100
//	score          = clamp(round(100 - (observed_waste - 30)), 0, 100)
//
// engine.go provides Analyze, the pure entry point that runs the rules,
// aggregates cost and occupancy waste, marks repeated categories and sorts
// issues by severity. Analyze holds no state and is safe for concurrent use.
//
// Grade bands: good ≥85, fair 60–84, poor <60.
package diagnostic
