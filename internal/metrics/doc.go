// Package metrics implements the in-process atomic counter registry
// behind the engine's observability surface. Exporters live under
// metrics/export.
package metrics
