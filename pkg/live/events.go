package live

import (
	"encoding/json"
	"time"
)

// Event is the interface for all session and channel events.
type Event interface {
	// EventType returns the event type string for serialization.
	EventType() string
}

// ConnectedEvent is emitted once the websocket connection is established.
type ConnectedEvent struct {
	SessionID string `json:"session_id,omitempty"`
}

func (e *ConnectedEvent) EventType() string { return "channel.connected" }

// DisconnectedEvent is emitted when the connection ends for any reason.
// Cause is nil on a clean close.
type DisconnectedEvent struct {
	Cause *ChannelError `json:"-"`
}

func (e *DisconnectedEvent) EventType() string { return "channel.disconnected" }

// SetupCompleteEvent is emitted when the model acknowledges session setup.
type SetupCompleteEvent struct {
	SessionID string `json:"session_id,omitempty"`
}

func (e *SetupCompleteEvent) EventType() string { return "channel.setup_complete" }

// TextDeltaEvent carries incremental model text output.
type TextDeltaEvent struct {
	Text string `json:"text"`
}

func (e *TextDeltaEvent) EventType() string { return "channel.text_delta" }

// AudioDeltaEvent carries a chunk of model speech as 24kHz mono PCM.
type AudioDeltaEvent struct {
	PCM []byte `json:"-"`
}

func (e *AudioDeltaEvent) EventType() string { return "channel.audio_delta" }

// OutputTranscriptionDeltaEvent carries the transcript of model speech.
type OutputTranscriptionDeltaEvent struct {
	Text string `json:"text"`
}

func (e *OutputTranscriptionDeltaEvent) EventType() string { return "channel.output_transcription_delta" }

// InputTranscriptionDeltaEvent carries the transcript of participant speech.
type InputTranscriptionDeltaEvent struct {
	Text string `json:"text"`
}

func (e *InputTranscriptionDeltaEvent) EventType() string { return "channel.input_transcription_delta" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "channel.turn_complete" }

// ToolCallEvent is emitted when the model invokes a declared tool.
type ToolCallEvent struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

func (e *ToolCallEvent) EventType() string { return "channel.tool_call" }

// ErrorEvent carries a classified channel error.
type ErrorEvent struct {
	Err *ChannelError `json:"-"`
}

func (e *ErrorEvent) EventType() string { return "channel.error" }

// SessionErrorEvent carries a failure that sent the session back to idle.
type SessionErrorEvent struct {
	Err error `json:"-"`
}

func (e *SessionErrorEvent) EventType() string { return "session.error" }

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	From SessionState `json:"from"`
	To   SessionState `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "session.state_changed" }

// LevelEvent reports the capture energy level for UI meters.
type LevelEvent struct {
	Level float64 `json:"level"`
}

func (e *LevelEvent) EventType() string { return "session.level" }

// TurnSealedEvent is emitted each time a turn is committed to the buffer.
type TurnSealedEvent struct {
	Turn Turn `json:"turn"`
}

func (e *TurnSealedEvent) EventType() string { return "session.turn_sealed" }

// AnswerSubmittedEvent is emitted when a participant turn is attributed
// to a question and submitted.
type AnswerSubmittedEvent struct {
	QuestionIndex int  `json:"question_index"`
	Turn          Turn `json:"turn"`
}

func (e *AnswerSubmittedEvent) EventType() string { return "session.answer_submitted" }

// TerminationDeferredEvent is emitted when the end of the interview is
// accepted but delayed until queued speech finishes playing.
type TerminationDeferredEvent struct {
	Delay time.Duration `json:"-"`
}

func (e *TerminationDeferredEvent) EventType() string { return "session.termination_deferred" }

// ReportReadyEvent is emitted when the final report has been generated.
type ReportReadyEvent struct {
	ReportID string `json:"report_id"`
}

func (e *ReportReadyEvent) EventType() string { return "session.report_ready" }
