// Package security builds the HTTP clients the agent uses to reach equipment
// exporters and hvacdiag-server. Credentials are resolved from the
// environment on every request, so a rotated secret takes effect without a
// restart.
package security
