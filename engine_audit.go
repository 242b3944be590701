package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/access"
	"github.com/MrEthical07/goGuard/snapshot"
	"github.com/MrEthical07/goGuard/source"
	"github.com/google/uuid"
)

// AuditErrorCode is the stable error classification carried by audit events.
type AuditErrorCode string

const (
	auditErrUnavailable  AuditErrorCode = "source_unavailable"
	auditErrUnauthorized AuditErrorCode = "source_unauthorized"
	auditErrNotFound     AuditErrorCode = "grant_not_found"
	auditErrMalformed    AuditErrorCode = "grant_malformed"
	auditErrTimeout      AuditErrorCode = "timeout"
	auditErrInternal     AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	key snapshot.Key,
	reason string,
	err error,
	decorate func(*AuditEvent),
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		EventID:        uuid.NewString(),
		Timestamp:      e.now().UTC(),
		EventType:      eventType,
		UserID:         key.UserID,
		OrganizationID: key.OrganizationID,
		Reason:         reason,
		Success:        success,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}
	if decorate != nil {
		decorate(&event)
	}

	e.audit.Emit(ctx, event)
}

// recordDecision counts d and audits denials and optimistic grants. Loading
// outcomes are counted as denials but not audited; they resolve on their own.
func (e *Engine) recordDecision(ctx context.Context, key snapshot.Key, d access.Decision, policy access.Policy) {
	if d.Granted {
		e.metricInc(MetricDecisionGranted)
		if d.Reason.Optimistic() {
			e.metricInc(MetricOptimisticGrant)
			e.emitAudit(ctx, AuditOptimisticGrant, true, key, string(d.Reason), nil, func(ev *AuditEvent) {
				ev.Policy = policy.String()
			})
		}
		return
	}

	e.metricInc(MetricDecisionDenied)
	if d.Reason.Loading() {
		return
	}
	e.emitAudit(ctx, AuditAccessDenied, false, key, string(d.Reason), nil, func(ev *AuditEvent) {
		ev.Policy = policy.String()
		ev.Missing = append([]string(nil), d.Missing...)
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, source.ErrSourceUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, source.ErrSourceNotFound):
		return auditErrNotFound
	case errors.Is(err, source.ErrSourceMalformed):
		return auditErrMalformed
	case errors.Is(err, source.ErrSourceUnavailable):
		return auditErrUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	default:
		return auditErrInternal
	}
}
