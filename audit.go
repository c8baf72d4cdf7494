package tabAuth

import (
	"context"
	"io"
	"time"

	"github.com/quillpress/tabAuth/internal/audit"
	"github.com/rs/zerolog"
)

// Session event types.
const (
	EventLogin              = "login"
	EventLoginFailed        = "login_failed"
	EventHydrated           = "session_hydrated"
	EventRefreshed          = "session_refreshed"
	EventLogout             = "logout"
	EventForcedLogout       = "session_forced_logout"
	EventInvalidationFailed = "invalidation_failed"
)

type (
	AuditEvent     = audit.Event
	AuditSink      = audit.Sink
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	LogSink        = audit.LogSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink writes events to log. It is the default sink when none is set.
func NewLogSink(log zerolog.Logger) LogSink {
	return audit.NewLogSink(log)
}

func (m *Manager) emit(ctx context.Context, eventType string, s *Session, err error, metadata map[string]string) {
	if m.audit == nil {
		return
	}
	ev := AuditEvent{
		Timestamp: m.now(),
		Type:      eventType,
		TabID:     m.tabID,
		Success:   err == nil,
		Metadata:  metadata,
	}
	if s != nil {
		ev.Username = s.Username()
		ev.Epoch = s.Epoch
	}
	if err != nil {
		ev.Error = err.Error()
	}
	m.audit.Emit(ctx, ev)
}

// AuditDropped returns the number of events dropped because the buffer was full.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

func (m *Manager) now() time.Time {
	return time.Now().UTC()
}
