package types

import "time"

// Severity ranks how urgently an Issue needs attention.
type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

// Category names the kind of anomaly an Issue reports.
type Category string

const (
	CategoryTemperatureDeviation Category = "Temperature deviation"
	CategoryExcessiveRuntime     Category = "Excessive runtime"
	CategoryUnnecessaryRuntime   Category = "Unnecessary runtime"
)

// Action is the recommended next step for an Issue.
type Action string

const (
	ActionScheduleTechnician Action = "Schedule technician"
	ActionCheckYourself      Action = "Check yourself"
)

// UnknownTime is the label used for readings that carry no time value.
const UnknownTime = "Unknown"

// Reading is one timestamped row of HVAC sensor data.
// Every measurement is optional; a nil field means the value was not recorded.
type Reading struct {
	// Time is an opaque label copied verbatim into any Issue the row triggers.
	Time string `json:"time,omitempty"`

	// Temp is the observed temperature in °C.
	Temp *float64 `json:"temp,omitempty"`

	// TargetTemp is the setpoint temperature in °C.
	TargetTemp *float64 `json:"target_temp,omitempty"`

	// Runtime is equipment runtime in minutes for the interval.
	Runtime *float64 `json:"runtime,omitempty"`

	// Occupancy is 0 when the space was unoccupied, nonzero otherwise.
	Occupancy *float64 `json:"occupancy,omitempty"`
}

// TimeLabel returns r.Time, or UnknownTime when the row carries none.
func (r Reading) TimeLabel() string {
	if r.Time == "" {
		return UnknownTime
	}
	return r.Time
}

// Issue is one detected anomaly.
type Issue struct {
	Issue    Category `json:"issue"`
	Time     string   `json:"time"`
	Evidence string   `json:"evidence"`
	Cost     int      `json:"cost"`
	Severity Severity `json:"severity"`
	Notes    string   `json:"notes"`
	Action   Action   `json:"action"`
}

// Report is the output of one diagnostic analysis.
type Report struct {
	// Issues is ordered by severity (High first); ties keep detection order.
	Issues []Issue `json:"issues"`

	// EfficiencyScore is in [0, 100].
	EfficiencyScore int `json:"efficiency_score"`

	// TotalCost is the sum of Issue.Cost over Issues.
	TotalCost int `json:"total_cost"`

	// OccupancyWasted is the total runtime in minutes recorded while unoccupied.
	OccupancyWasted float64 `json:"occupancy_wasted"`

	// RowCount is the number of readings analysed.
	RowCount int `json:"row_count"`
}

// Run is one analysis run as tracked by the server: where the data came from,
// when the report was received, and the report itself.
type Run struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	SourceType string    `json:"source_type,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Report     Report    `json:"report"`
}
