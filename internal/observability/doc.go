// Package observability records workflow run metrics and trace spans with
// OpenTelemetry. Everything uses the global OTel providers, so nothing is
// exported until the process installs real ones. No-op implementations are
// provided for tests and for callers that opt out.
package observability
