// Package config loads the server-side configuration from the `server:` section
// of the config file (other keys are ignored by the server binary).
//
// Config fields:
//   - HTTPPort             port for the REST API, /metrics and /ws/stream (default 8080)
//   - Runs.TTL             how long a run stays queryable (default 24h)
//   - Runs.MaxUploadBytes  upload cap for POST /api/v1/analyze (default 10 MiB)
//   - Alerts               rules and webhook targets; reloaded by Watch
//   - Events               optional Kafka publication of run.completed events
//   - Log                  level and optional rotating file
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
