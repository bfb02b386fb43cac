package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vango-go/interview-live/pkg/live"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		RetryCount: -1,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestBootstrap(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/interviews/iv-1/plan" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewEncoder(w).Encode(live.InterviewPlan{
			InterviewID: "iv-1",
			SessionID:   "s-1",
			System:      "You are the interviewer.",
			Questions: []live.Question{
				{ID: "q-1", Prompt: "Tell me about yourself."},
				{ID: "q-2", Prompt: "Why this role?"},
			},
		})
	}))

	plan, err := c.Bootstrap(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if plan.SessionID != "s-1" {
		t.Errorf("expected session s-1, got %q", plan.SessionID)
	}
	if plan.TotalQuestions != 2 {
		t.Errorf("expected total questions filled from list, got %d", plan.TotalQuestions)
	}
}

func TestFlushTurns(t *testing.T) {
	var body struct {
		Turns []live.Turn `json:"turns"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/s-1/turns" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))

	turns := []live.Turn{
		{Number: 1, Speaker: live.SpeakerModel, Text: "Hello.", At: time.Unix(100, 0).UTC()},
		{Number: 2, Speaker: live.SpeakerParticipant, Text: "Hi.", At: time.Unix(101, 0).UTC()},
	}
	if err := c.FlushTurns(context.Background(), "s-1", turns); err != nil {
		t.Fatalf("FlushTurns: %v", err)
	}
	if len(body.Turns) != 2 || body.Turns[1].Speaker != live.SpeakerParticipant {
		t.Errorf("unexpected flushed body: %+v", body)
	}
}

func TestSubmitAnswer(t *testing.T) {
	var body struct {
		QuestionID string    `json:"question_id"`
		Answer     live.Turn `json:"answer"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/s-1/answers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}))

	answer := live.Turn{Number: 4, Speaker: live.SpeakerParticipant, Text: "My answer."}
	if err := c.SubmitAnswer(context.Background(), "s-1", "q-1", answer); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if body.QuestionID != "q-1" || body.Answer.Number != 4 {
		t.Errorf("unexpected submit body: %+v", body)
	}
}

func TestGenerateReport(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/sessions/s-1/report" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(live.Report{ID: "rep-1", Summary: "Solid."})
	}))

	report, err := c.GenerateReport(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.ID != "rep-1" {
		t.Errorf("expected rep-1, got %q", report.ID)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"client error", http.StatusUnprocessableEntity, false},
		{"not found", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, true},
		{"bad gateway", http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))

			err := c.Complete(context.Background(), "s-1", nil)
			var pe *PersistenceError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *PersistenceError, got %T", err)
			}
			if pe.Status != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, pe.Status)
			}
			if pe.Retryable != tt.retryable {
				t.Errorf("expected retryable=%v, got %v", tt.retryable, pe.Retryable)
			}
			if pe.Op != "complete" {
				t.Errorf("expected op complete, got %q", pe.Op)
			}
		})
	}
}
