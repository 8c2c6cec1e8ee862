package backDashboard

import "github.com/orbitadevhub/backDashboard/internal/audit"

// Audit types, re-exported so callers can plug a sink without importing an
// internal package.
type (
	AuditEvent  = audit.Event
	AuditSink   = audit.Sink
	NoOpSink    = audit.NoOpSink
	ChannelSink = audit.ChannelSink
	LoggerSink  = audit.LoggerSink
)

var (
	NewChannelSink = audit.NewChannelSink
	NewLoggerSink  = audit.NewLoggerSink
)
