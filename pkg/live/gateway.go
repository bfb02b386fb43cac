package live

import (
	"context"

	"github.com/vango-go/interview-live/pkg/live/protocol"
)

// Question is one planned interview question.
type Question struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
}

// InterviewPlan is everything the session needs from the backend to run:
// the question list, the system prompt, a session identity to report
// progress under, and the live-channel connection material.
type InterviewPlan struct {
	InterviewID string `json:"interview_id"`
	SessionID   string `json:"session_id"`

	// Credential is a short-lived token minted for this session's live
	// channel. When present it is preferred over the static API key.
	Credential string `json:"credential,omitempty"`

	// Model and Tools let the backend pin the conversation model and
	// tool schema for the session.
	Model string                     `json:"model,omitempty"`
	Tools []protocol.ToolDeclaration `json:"tools,omitempty"`

	System         string     `json:"system"`
	Voice          string     `json:"voice,omitempty"`
	Questions      []Question `json:"questions"`
	TotalQuestions int        `json:"total_questions"`
}

// Report is the generated interview evaluation.
type Report struct {
	ID      string `json:"id"`
	Summary string `json:"summary,omitempty"`
}

// Gateway is the persistence backend the session reports to. The
// pkg/backend client is the HTTP implementation; tests use recording
// fakes.
type Gateway interface {
	// Bootstrap fetches the interview plan before the session starts.
	Bootstrap(ctx context.Context, interviewID string) (*InterviewPlan, error)

	// FlushTurns persists a drained batch of turns. Fire-and-forget from
	// the tracker's point of view: failures are logged, never retried.
	FlushTurns(ctx context.Context, sessionID string, turns []Turn) error

	// SubmitAnswer records a participant turn as the answer to a question.
	SubmitAnswer(ctx context.Context, sessionID, questionID string, answer Turn) error

	// Complete marks the session finished and delivers the unflushed
	// remainder of the turn buffer.
	Complete(ctx context.Context, sessionID string, remainder []Turn) error

	// GenerateReport produces the final evaluation for a completed session.
	GenerateReport(ctx context.Context, sessionID string) (*Report, error)
}
