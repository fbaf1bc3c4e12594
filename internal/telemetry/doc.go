// Package telemetry wires OpenTelemetry tracing and metrics for ragcore.
//
// Spans and OTel instruments are exported over OTLP (gRPC by default) to a
// collector. When telemetry is disabled the global no-op providers stay in
// place, so instrumented packages never need to check.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  sampling:
//	    rate: 0.25
//	  metrics:
//	    export_interval: "15s"
//
// Tests use NewTestTelemetry to record spans and metrics in memory.
package telemetry
