package api

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
)

// Hint levels, most urgent first.
const (
	LevelCritical = "critical"
	LevelWarning  = "warning"
	LevelInfo     = "info"
	LevelOK       = "ok"
)

// wasteWarnMinutes is the unoccupied runtime above which occupancy waste is
// a warning rather than a note.
const wasteWarnMinutes = 60.0

// DiagnosticHint is one human-readable insight about a run.
// The UI shows these as chips on the run card; Detail explains the finding
// in plain English.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

// computeDiagnostics derives hints from a run's report, critical first.
func computeDiagnostics(run types.Run) []DiagnosticHint {
	rep := run.Report

	// ── Empty dataset ────────────────────────────────────────────────────────
	if rep.RowCount == 0 {
		return []DiagnosticHint{{
			Key:   "empty_dataset",
			Level: LevelInfo,
			Title: "No readings",
			Detail: "The uploaded log contained a header but no data rows, so there was nothing " +
				"to check. Make sure the export covers the period you meant to analyze.",
		}}
	}

	sum := diagnostic.Summarize(rep)
	var hints []DiagnosticHint

	// ── Grade ────────────────────────────────────────────────────────────────
	score := float64(rep.EfficiencyScore)
	switch sum.Grade {
	case diagnostic.GradePoor:
		hints = append(hints, DiagnosticHint{
			Key:   "grade",
			Level: LevelCritical,
			Title: "Poor efficiency",
			Detail: fmt.Sprintf(
				"This system scored %d/100. It is wasting noticeably more energy than a typical "+
					"installation. Start with the high-severity items below; they carry most of the cost.",
				rep.EfficiencyScore),
			Value: &score,
		})
	case diagnostic.GradeFair:
		hints = append(hints, DiagnosticHint{
			Key:   "grade",
			Level: LevelWarning,
			Title: "Fair efficiency",
			Detail: fmt.Sprintf(
				"This system scored %d/100. It works, but the issues below are costing energy "+
					"that a few adjustments would recover.",
				rep.EfficiencyScore),
			Value: &score,
		})
	}

	// ── Work orders ──────────────────────────────────────────────────────────
	if sum.HighCount > 0 {
		v := float64(sum.HighCount)
		title := "1 work order"
		if sum.HighCount > 1 {
			title = fmt.Sprintf("%d work orders", sum.HighCount)
		}
		hints = append(hints, DiagnosticHint{
			Key:   "work_orders",
			Level: LevelCritical,
			Title: title,
			Detail: fmt.Sprintf(
				"%d high-severity finding(s) need a technician: large setpoint misses or runtimes "+
					"beyond what a healthy unit needs. These usually point to a failing component "+
					"or a refrigerant problem rather than a settings issue.",
				sum.HighCount),
			Value: &v,
		})
	}

	// ── Occupancy waste ──────────────────────────────────────────────────────
	if rep.OccupancyWasted > 0 {
		v := rep.OccupancyWasted
		level := LevelInfo
		if v > wasteWarnMinutes {
			level = LevelWarning
		}
		hints = append(hints, DiagnosticHint{
			Key:   "occupancy_waste",
			Level: level,
			Title: fmt.Sprintf("%s min unoccupied", trimFloat(v)),
			Detail: fmt.Sprintf(
				"The system ran for %s minutes while the space was empty. A schedule or an "+
					"occupancy sensor tied to the thermostat would cut this without affecting comfort.",
				trimFloat(v)),
			Value: &v,
		})
	}

	// ── Repeated findings ────────────────────────────────────────────────────
	for _, cat := range sum.Repeated() {
		v := float64(sum.ByCategory[cat])
		hints = append(hints, DiagnosticHint{
			Key:   "repeated_" + strings.ReplaceAll(strings.ToLower(string(cat)), " ", "_"),
			Level: LevelWarning,
			Title: fmt.Sprintf("Repeated: %s", strings.ToLower(string(cat))),
			Detail: fmt.Sprintf(
				"%q was detected %d times in this log. A recurring pattern is more likely a "+
					"systemic fault or a bad schedule than a one-off event.",
				cat, sum.ByCategory[cat]),
			Value: &v,
		})
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		title, detail := "All clear", fmt.Sprintf(
			"No issues found across %d readings. The system held its setpoint, stayed within "+
				"normal runtimes and did not run while the space was empty.",
			rep.RowCount)
		if sum.IssueCount > 0 {
			title = "Minor issues"
			detail = fmt.Sprintf(
				"%d minor finding(s) with an estimated cost of %d. Nothing here needs a "+
					"technician; the report lists what to check yourself.",
				sum.IssueCount, rep.TotalCost)
		}
		hints = append(hints, DiagnosticHint{
			Key:    "healthy",
			Level:  LevelOK,
			Title:  title,
			Detail: detail,
			Value:  &score,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank(hints[i].Level) < levelRank(hints[j].Level)
	})
	return hints
}

func levelRank(level string) int {
	switch level {
	case LevelCritical:
		return 0
	case LevelWarning:
		return 1
	case LevelInfo:
		return 2
	default:
		return 3
	}
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
