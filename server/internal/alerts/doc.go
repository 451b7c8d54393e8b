// Package alerts evaluates threshold rules against diagnostic runs and
// notifies Slack, Teams or generic HTTP webhooks when a rule fires for a
// source and again when it resolves.
//
// Conditions take the form "field op value" over run fields such as
// efficiency_score, total_cost, occupancy_wasted, issue_count and
// high_issues, plus "grade == poor". A rule re-fires for the same source
// only after its cooldown.
package alerts
