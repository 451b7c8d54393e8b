// Package receiver is the ingestion pipeline shared by dataset uploads and
// agent-shipped reports.
//
// Every accepted run is validated, given a run id when it has none, stamped
// with the receive time and stored. It is then evaluated against the alert
// rules, recorded in the metrics registry and published as a run.completed
// event. Rejections are counted by reason.
package receiver
