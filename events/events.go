// Package events is the fire-and-forget audit sink for protocol outcomes.
package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Event types raised by the protocol core.
const (
	TypeTokenIssued         = "token_issued"
	TypeGrantRedeemed       = "grant_redeemed"
	TypeGrantReuseDetected  = "grant_reuse_detected"
	TypeAuthorizeFailed     = "authorize_failed"
	TypeTokenRequestFailed  = "token_request_failed"
	TypeClientAuthFailed    = "client_authentication_failed"
	TypeConsentGranted      = "consent_granted"
	TypeDeviceFlowStarted   = "device_flow_started"
	TypeDeviceFlowThrottled = "device_flow_throttled"
)

// Event is a single audit record. Details carry event-specific context;
// callers must not put raw credentials in them.
type Event struct {
	Type      string
	ClientID  string
	SubjectID string
	Details   map[string]any
	Timestamp time.Time
}

// Sink receives audit events. Raise must never block the request path or
// return an error to it.
type Sink interface {
	Raise(event Event)
}

// LogSink writes events through zerolog.
type LogSink struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger, now: time.Now}
}

func (s *LogSink) Raise(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	s.logger.Info().
		Str("event_type", event.Type).
		Str("client_id", event.ClientID).
		Str("subject_id", event.SubjectID).
		Fields(event.Details).
		Time("event_time", event.Timestamp).
		Msg("audit")
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Raise(Event) {}
