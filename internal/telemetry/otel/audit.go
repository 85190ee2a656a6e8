package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// recordEmitter is the part of otellog.Logger the sink uses.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// AuditSink forwards audit events to the collector as log records. It satisfies
// audit.AuditLogger.
type AuditSink struct {
	logger recordEmitter
	now    func() time.Time
}

// NewAuditSink returns a sink on provider, or nil when provider is nil.
func NewAuditSink(provider *sdklog.LoggerProvider) *AuditSink {
	if provider == nil {
		return nil
	}
	return &AuditSink{logger: provider.Logger("storefront.audit"), now: time.Now}
}

func (s *AuditSink) LogEvent(ctx context.Context, tenantID, userID, action, resource, metadata string) {
	if s == nil {
		return
	}
	var rec otellog.Record
	rec.SetTimestamp(s.now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName("audit." + action)
	if metadata != "" {
		rec.SetBody(otellog.StringValue(metadata))
	}
	rec.AddAttributes(
		otellog.String("tenant_id", tenantID),
		otellog.String("action", action),
		otellog.String("resource", resource),
	)
	if userID != "" {
		rec.AddAttributes(otellog.String("user_id", userID))
	}
	s.logger.Emit(ctx, rec)
}
