package goGuard

import (
	"github.com/MrEthical07/goGuard/internal/audit"
)

// AuditEvent is one structured authorization record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// ChannelSink delivers events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes events through a zerolog logger.
type LogSink = audit.LogSink

// NewLogSink returns a [LogSink] writing to log.
var NewLogSink = audit.NewLogSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
var NewChannelSink = audit.NewChannelSink

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
var NewJSONWriterSink = audit.NewJSONWriterSink

const (
	AuditAccessDenied        = "access_denied"
	AuditOptimisticGrant     = "optimistic_grant"
	AuditResolveFailed       = "resolve_failed"
	AuditCacheInvalidated    = "cache_invalidated"
	AuditCacheCleared        = "cache_cleared"
	AuditStaleWriteDiscarded = "stale_write_discarded"
)
