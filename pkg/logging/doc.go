// Package logging builds the structured slog logger shared by the agent and
// server binaries: JSON to stdout, optionally teed into a size-rotated file.
package logging
