// Package config loads and watches the agent configuration file (agent.yaml).
//
// Load(path) reads the YAML file, applies defaults (60s scrape, 15s ship,
// buffer of 100 runs, window of 96 readings), then validates required fields
// and enums. Credentials are never stored in the file: AuthConfig names the
// environment variables that hold them.
//
// Watch(ctx, path, onChange) uses fsnotify to detect edits and calls onChange
// with the newly parsed Config. A reload that fails to parse is logged and
// the previous config stays active.
package config
