package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/interview-live/pkg/live/protocol"
	"github.com/vango-go/interview-live/pkg/media"
)

// EndInterviewTool is the tool name the model calls to finish the session.
const EndInterviewTool = "end_interview"

// primingMessage kicks off the first model turn once setup completes.
// Without it the model has no reason to speak and the session sits
// silent.
const primingMessage = "The candidate has joined and can hear you. Greet them, confirm they are ready, and begin the interview."

// Player is the playback surface the controller drives. media.Scheduler
// is the production implementation.
type Player interface {
	Enqueue(pcm []byte) error
	RemainingAt(t time.Time) time.Duration
	Flush()
	Close() error
}

// ControllerConfig wires an interview session controller.
type ControllerConfig struct {
	Config SessionConfig

	// InterviewID selects which interview plan to bootstrap.
	InterviewID string

	// ChannelURL and APIKey configure the duplex model connection.
	ChannelURL string
	APIKey     string

	// Gateway persists turns, answers, and the final report. Required.
	Gateway Gateway

	// Capture produces microphone frames. Required.
	Capture media.Source

	// Player schedules model speech for playback. Required.
	Player Player

	// DialFunc opens the duplex channel. Default: Dial. Tests inject
	// scripted transports here.
	DialFunc func(ctx context.Context, req DialRequest) (Transport, error)

	Logger *slog.Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Controller runs one interview session end to end: bootstrap, live
// conversation, turn persistence, termination, and report generation.
//
// All inbound channel events are consumed by a single dispatch loop;
// the controller owns every piece of mutable session state.
type Controller struct {
	cfg    ControllerConfig
	logger *slog.Logger
	now    func() time.Time
	dial   func(ctx context.Context, req DialRequest) (Transport, error)

	events chan Event

	mu            sync.RWMutex
	state         SessionState
	plan          *InterviewPlan
	channel       Transport
	tracker       *TurnTracker
	report        *Report
	capturing     bool
	level         float64
	modelSpeaking bool

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
	endTimer *time.Timer
	wg       sync.WaitGroup
}

// NewController validates the wiring and returns an idle controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("controller gateway must not be nil")
	}
	if cfg.Capture == nil {
		return nil, fmt.Errorf("controller capture source must not be nil")
	}
	if cfg.Player == nil {
		return nil, fmt.Errorf("controller player must not be nil")
	}
	if cfg.Config.FlushThreshold <= 0 {
		cfg.Config.FlushThreshold = DefaultSessionConfig().FlushThreshold
	}
	if cfg.Config.TerminationMargin <= 0 {
		cfg.Config.TerminationMargin = DefaultSessionConfig().TerminationMargin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Controller{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
		dial:   cfg.DialFunc,
		events: make(chan Event, 256),
		state:  StateIdle,
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context, req DialRequest) (Transport, error) {
			return Dial(ctx, req)
		}
	}
	return c, nil
}

// Events yields observer events for UIs. Emission is non-blocking: a
// slow observer misses events rather than stalling the session.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current session state.
func (c *Controller) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Mode returns the current display mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ActivityMode(c.state, c.capturing, c.level, c.modelSpeaking)
}

// Report returns the generated report, once the session has completed.
func (c *Controller) Report() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.report
}

// Start bootstraps the interview plan, opens the duplex channel, and
// begins capturing. Any failure rolls back partial resources and
// returns the controller to idle.
func (c *Controller) Start(ctx context.Context) error {
	// Check and transition under one lock so concurrent Start calls
	// cannot both pass the idle gate.
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start session in state %s", state)
	}
	c.state = StateStarting
	c.mu.Unlock()
	c.debug("state", "transition", "from", StateIdle.String(), "to", StateStarting.String())
	c.emit(&StateChangedEvent{From: StateIdle, To: StateStarting})

	plan, err := c.cfg.Gateway.Bootstrap(ctx, c.cfg.InterviewID)
	if err != nil {
		c.fail(fmt.Errorf("bootstrap interview: %w", err))
		return err
	}
	if plan.TotalQuestions == 0 {
		plan.TotalQuestions = len(plan.Questions)
	}
	if plan.SessionID == "" {
		// Backends that leave session identity to the client get a fresh one.
		plan.SessionID = uuid.NewString()
	}

	tracker := NewTurnTracker(TrackerConfig{
		FlushThreshold: c.cfg.Config.FlushThreshold,
		Flush:          c.flushTurns,
		Submit:         c.submitAnswer,
		OnSeal:         func(turn Turn) { c.emit(&TurnSealedEvent{Turn: turn}) },
		Now:            c.now,
	})

	// The bootstrap payload wins over static client config: the backend
	// mints a short-lived channel credential per session and may pin the
	// model and tool schema.
	apiKey := c.cfg.APIKey
	if plan.Credential != "" {
		apiKey = plan.Credential
	}
	model := c.cfg.Config.Model
	if plan.Model != "" {
		model = plan.Model
	}
	voice := c.cfg.Config.Voice
	if plan.Voice != "" {
		voice = plan.Voice
	}
	tools := plan.Tools
	if !hasTool(tools, EndInterviewTool) {
		tools = append(tools, endInterviewDeclaration())
	}

	dialCtx := ctx
	if c.cfg.Config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.Config.ConnectTimeout)
		defer cancel()
	}
	channel, err := c.dial(dialCtx, DialRequest{
		URL:    c.cfg.ChannelURL,
		APIKey: apiKey,
		Model:  model,
		System: plan.System,
		Voice:  voice,
		Tools:  tools,
	})
	if err != nil {
		c.fail(fmt.Errorf("open channel: %w", err))
		return err
	}

	if err := c.cfg.Capture.Start(ctx); err != nil {
		_ = channel.Close()
		c.fail(fmt.Errorf("start capture: %w", err))
		return err
	}

	c.mu.Lock()
	c.plan = plan
	c.tracker = tracker
	c.channel = channel
	c.capturing = true
	c.mu.Unlock()

	c.wg.Add(2)
	go c.dispatchLoop(channel)
	go c.captureLoop()

	c.debug("session", "started", "interview_id", plan.InterviewID, "session_id", plan.SessionID, "questions", plan.TotalQuestions)
	return nil
}

// Stop tears the session down, delivers the unflushed turn remainder
// with the completion call, and generates the report. Idempotent: the
// first call does the work, later calls return its result.
func (c *Controller) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stop(ctx)
	})
	return c.stopErr
}

func (c *Controller) stop(ctx context.Context) error {
	c.stopping.Store(true)

	c.mu.Lock()
	state := c.state
	plan := c.plan
	tracker := c.tracker
	channel := c.channel
	timer := c.endTimer
	c.endTimer = nil
	c.capturing = false
	c.mu.Unlock()

	if state == StateIdle || state == StateCompleted {
		return nil
	}
	if timer != nil {
		timer.Stop()
	}
	if state != StateEnding {
		c.setState(StateEnding)
	}

	_ = c.cfg.Capture.Stop()
	if channel != nil {
		_ = channel.Close()
	}
	c.wg.Wait()
	_ = c.cfg.Player.Close()

	var remainder []Turn
	if tracker != nil {
		remainder = tracker.Drain()
	}
	if plan == nil {
		c.setState(StateCompleted)
		return nil
	}
	if err := c.cfg.Gateway.Complete(ctx, plan.SessionID, remainder); err != nil {
		c.logger.Error("session completion failed", "error", err)
		return err
	}

	c.setState(StateGeneratingReport)
	report, err := c.cfg.Gateway.GenerateReport(ctx, plan.SessionID)
	if err != nil {
		// The transcript is already durable; a failed report still ends
		// the session. The error is surfaced, not swallowed.
		c.logger.Error("report generation failed", "error", err)
		c.emit(&SessionErrorEvent{Err: err})
		c.setState(StateCompleted)
		return err
	}

	c.mu.Lock()
	c.report = report
	c.mu.Unlock()
	c.emit(&ReportReadyEvent{ReportID: report.ID})
	c.setState(StateCompleted)
	c.debug("session", "completed", "report_id", report.ID, "remainder_turns", len(remainder))
	return nil
}

// dispatchLoop is the single consumer of the channel's event stream.
func (c *Controller) dispatchLoop(channel Transport) {
	defer c.wg.Done()

	for event := range channel.Events() {
		switch e := event.(type) {
		case *ConnectedEvent:
			c.emit(e)
		case *SetupCompleteEvent:
			c.setState(StateActive)
			c.emit(e)
			if err := channel.SendText(primingMessage); err != nil {
				c.logger.Error("priming message failed", "error", err)
			}
		case *TextDeltaEvent:
			c.emit(e)
		case *AudioDeltaEvent:
			c.mu.Lock()
			c.modelSpeaking = true
			c.mu.Unlock()
			if err := c.cfg.Player.Enqueue(e.PCM); err != nil {
				c.logger.Error("playback enqueue failed", "error", err)
			}
		case *OutputTranscriptionDeltaEvent:
			c.tracker.AddDelta(SpeakerModel, e.Text)
			c.emit(e)
		case *InputTranscriptionDeltaEvent:
			c.handleParticipantSpeech(e)
		case *TurnCompleteEvent:
			c.tracker.EndTurn()
			c.mu.Lock()
			c.modelSpeaking = false
			c.mu.Unlock()
			c.emit(e)
		case *ToolCallEvent:
			c.handleToolCall(channel, e)
		case *ErrorEvent:
			c.emit(e)
			if e.Err != nil && !e.Err.Retryable {
				c.logger.Error("channel error", "code", e.Err.Code, "error", e.Err)
			}
		case *DisconnectedEvent:
			c.emit(e)
		}
	}

	// Stream closed. A deliberate stop handles its own teardown; an
	// unexpected disconnect during a live session aborts back to idle
	// with no report.
	if c.stopping.Load() {
		return
	}
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state == StateStarting || state == StateActive {
		err := channel.Err()
		if err == nil {
			err = &ChannelError{Code: ChannelNetwork, Message: "connection closed unexpectedly"}
		}
		c.fail(err)
	}
}

func (c *Controller) captureLoop() {
	defer c.wg.Done()

	for frame := range c.cfg.Capture.Frames() {
		c.emit(&LevelEvent{Level: frame.Level})

		c.mu.Lock()
		c.level = frame.Level
		channel := c.channel
		state := c.state
		c.mu.Unlock()
		if channel == nil || (state != StateActive && state != StateStarting) {
			continue
		}
		if err := channel.SendAudioFrame(frame.Samples); err != nil {
			if c.stopping.Load() {
				return
			}
			c.debug("capture", "frame send failed", "error", err)
		}
	}
}

// handleParticipantSpeech records the transcript delta and, when the
// participant talks over queued model speech, flushes playback.
func (c *Controller) handleParticipantSpeech(e *InputTranscriptionDeltaEvent) {
	c.tracker.AddDelta(SpeakerParticipant, e.Text)
	c.emit(e)

	c.mu.Lock()
	speaking := c.modelSpeaking
	c.modelSpeaking = false
	c.mu.Unlock()

	if speaking && c.cfg.Player.RemainingAt(c.now()) > 0 {
		c.debug("playback", "barge-in, flushing queued speech")
		c.cfg.Player.Flush()
	}
}

// handleToolCall gates the model's end_interview request: enough of the
// interview has to be on record before the session is allowed to end.
func (c *Controller) handleToolCall(channel Transport, e *ToolCallEvent) {
	c.emit(e)
	if e.Name != EndInterviewTool {
		_ = channel.SendToolResult(e.ID, map[string]any{
			"status": "error",
			"reason": fmt.Sprintf("unknown tool %q", e.Name),
		})
		return
	}

	c.mu.RLock()
	plan := c.plan
	state := c.state
	c.mu.RUnlock()
	if plan == nil || state != StateActive {
		_ = channel.SendToolResult(e.ID, map[string]any{"status": "rejected", "reason": "session is not active"})
		return
	}

	// The closing exchange itself is the last answer, so N-1 recorded
	// participant turns means every question has been addressed.
	answered := c.tracker.ParticipantTurns()
	required := plan.TotalQuestions - 1
	if answered < required {
		c.debug("termination", "rejected", "participant_turns", answered, "required", required)
		_ = channel.SendToolResult(e.ID, map[string]any{
			"status": "rejected",
			"reason": fmt.Sprintf("only %d of %d questions answered; continue the interview", answered, plan.TotalQuestions),
		})
		return
	}

	_ = channel.SendToolResult(e.ID, map[string]any{"status": "ok"})
	c.setState(StateEnding)

	// Let the model finish saying goodbye before tearing down.
	delay := c.cfg.Player.RemainingAt(c.now()) + c.cfg.Config.TerminationMargin
	c.emit(&TerminationDeferredEvent{Delay: delay})
	c.debug("termination", "accepted", "delay", delay)

	c.mu.Lock()
	c.endTimer = time.AfterFunc(delay, func() {
		_ = c.Stop(context.Background())
	})
	c.mu.Unlock()
}

// flushTurns is the tracker's fire-and-forget batch persistence hook.
func (c *Controller) flushTurns(turns []Turn) {
	c.mu.RLock()
	plan := c.plan
	c.mu.RUnlock()
	if plan == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Gateway.FlushTurns(ctx, plan.SessionID, turns); err != nil {
		c.logger.Error("turn flush failed", "turns", len(turns), "error", err)
	}
}

// submitAnswer attributes a participant turn to its question and ships it.
func (c *Controller) submitAnswer(questionIndex int, answer Turn) {
	c.mu.RLock()
	plan := c.plan
	c.mu.RUnlock()
	if plan == nil || questionIndex >= len(plan.Questions) {
		return
	}
	question := plan.Questions[questionIndex]
	c.emit(&AnswerSubmittedEvent{QuestionIndex: questionIndex, Turn: answer})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Gateway.SubmitAnswer(ctx, plan.SessionID, question.ID, answer); err != nil {
		c.logger.Error("answer submit failed", "question_id", question.ID, "error", err)
	}
}

// fail aborts a starting or active session back to idle.
func (c *Controller) fail(err error) {
	_ = c.cfg.Capture.Stop()
	c.mu.Lock()
	c.capturing = false
	c.level = 0
	c.modelSpeaking = false
	c.mu.Unlock()
	c.setState(StateIdle)
	c.emit(&SessionErrorEvent{Err: err})
	c.logger.Error("session failed", "error", err)
}

func (c *Controller) setState(to SessionState) {
	c.mu.Lock()
	from := c.state
	if from == to {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()
	c.debug("state", "transition", "from", from.String(), "to", to.String())
	c.emit(&StateChangedEvent{From: from, To: to})
}

func (c *Controller) emit(event Event) {
	if event == nil {
		return
	}
	select {
	case c.events <- event:
	default:
		// Observers are best effort.
	}
}

func (c *Controller) debug(category, message string, args ...any) {
	c.logger.Debug(message, append([]any{"category", category}, args...)...)
}

func hasTool(tools []protocol.ToolDeclaration, name string) bool {
	for _, tool := range tools {
		if tool.Name == name {
			return true
		}
	}
	return false
}

func endInterviewDeclaration() protocol.ToolDeclaration {
	return protocol.ToolDeclaration{
		Name:        EndInterviewTool,
		Description: "End the interview once every question has been asked and answered.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"reason":{"type":"string"}}}`),
	}
}
