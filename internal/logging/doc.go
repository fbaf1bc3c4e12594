// Package logging wraps zap with context-aware methods.
//
// Every call takes a context.Context and appends correlation fields taken
// from it: the active OpenTelemetry span, the tenant, the conversation and
// the HTTP request ID. Sensitive keys are redacted by the encoder.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	ctx = tenant.WithID(ctx, "acme")
//	logger.Info(ctx, "document ingested", zap.String("document_id", id))
package logging
