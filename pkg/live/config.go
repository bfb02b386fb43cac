package live

import "time"

// SessionState represents the current state of an interview session.
type SessionState int

const (
	// StateIdle is the initial state before the session is started.
	StateIdle SessionState = iota
	// StateStarting is while bootstrap, connection, and capture come up.
	StateStarting
	// StateActive is the live conversation.
	StateActive
	// StateEnding is after termination is accepted, while queued speech drains.
	StateEnding
	// StateGeneratingReport is while the final report is produced.
	StateGeneratingReport
	// StateCompleted is the terminal state of a finished interview.
	StateCompleted
)

// String returns a human-readable state name.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateActive:
		return "ACTIVE"
	case StateEnding:
		return "ENDING"
	case StateGeneratingReport:
		return "GENERATING_REPORT"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// SessionConfig holds tunables for an interview session.
type SessionConfig struct {
	// Model is the live conversation model.
	Model string `json:"model"`

	// Voice selects the model voice.
	Voice string `json:"voice,omitempty"`

	// FlushThreshold is the number of buffered turns that triggers a
	// background flush to the backend. Default: 8.
	FlushThreshold int `json:"flush_threshold"`

	// TerminationMargin is added to the remaining playback time when
	// deferring session stop, so the closing words are not cut off.
	// Default: 1500ms.
	TerminationMargin time.Duration `json:"termination_margin"`

	// ConnectTimeout bounds the channel dial and setup handshake.
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:             "models/live-v1",
		FlushThreshold:    8,
		TerminationMargin: 1500 * time.Millisecond,
		ConnectTimeout:    defaultConnectTimeout,
	}
}
