package diagnostic

import "github.com/hvacdiag/hvacdiag/pkg/types"

// Summary condenses a report into counts used by alerting, metrics and the API.
type Summary struct {
	Grade       string                 `json:"grade"`
	IssueCount  int                    `json:"issue_count"`
	HighCount   int                    `json:"high_count"`
	MediumCount int                    `json:"medium_count"`
	LowCount    int                    `json:"low_count"`
	ByCategory  map[types.Category]int `json:"by_category"`
}

// Summarize counts the issues in rep by severity and category.
func Summarize(rep types.Report) Summary {
	s := Summary{
		Grade:      Grade(rep.EfficiencyScore),
		IssueCount: len(rep.Issues),
		ByCategory: make(map[types.Category]int),
	}
	for _, iss := range rep.Issues {
		s.ByCategory[iss.Issue]++
		switch iss.Severity {
		case types.SeverityHigh:
			s.HighCount++
		case types.SeverityMedium:
			s.MediumCount++
		case types.SeverityLow:
			s.LowCount++
		}
	}
	return s
}

// Repeated returns the categories that occur more than once, in rule order.
func (s Summary) Repeated() []types.Category {
	var out []types.Category
	for _, rl := range defaultRules {
		if s.ByCategory[rl.Category] > 1 {
			out = append(out, rl.Category)
		}
	}
	return out
}
