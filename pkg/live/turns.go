package live

import (
	"sync"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerModel       Speaker = "model"
	SpeakerParticipant Speaker = "participant"
)

// Turn is one sealed contribution to the conversation.
type Turn struct {
	Number  int       `json:"number"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// TrackerConfig wires a TurnTracker to its collaborators.
type TrackerConfig struct {
	// FlushThreshold is the buffered turn count that triggers a flush.
	// Default: 8.
	FlushThreshold int

	// Flush receives a drained batch of turns. It is called on its own
	// goroutine and its outcome never feeds back into the buffer: a
	// failed flush is the flusher's problem to log, not ours to retry.
	Flush func(turns []Turn)

	// Submit receives a participant turn attributed to a question index.
	Submit func(questionIndex int, answer Turn)

	// OnSeal observes every sealed turn.
	OnSeal func(turn Turn)

	// Now stamps sealed turns. Default: time.Now.
	Now func() time.Time
}

// TurnTracker accumulates transcription deltas into speaker-attributed
// turns, numbers them, and batches them for persistence.
//
// Attribution follows the conversation shape: the model asks, the
// participant answers, the model moves on. The first completed
// model/participant exchange is the readiness handshake (greeting and
// acknowledgement) and produces no answer; every later participant turn
// answers the question at the cursor and advances it.
type TurnTracker struct {
	mu sync.Mutex

	cfg TrackerConfig

	open          *Turn
	buffer        []Turn
	next          int
	participant   int
	answered      int
	handshakeDone bool
}

// NewTurnTracker returns a tracker with the config's defaults filled in.
func NewTurnTracker(cfg TrackerConfig) *TurnTracker {
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TurnTracker{cfg: cfg, next: 1}
}

// AddDelta appends transcription text to the open turn. A speaker
// switch seals the previous turn first.
func (t *TurnTracker) AddDelta(speaker Speaker, text string) {
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open != nil && t.open.Speaker != speaker {
		t.sealLocked()
		t.maybeFlushLocked()
	}
	if t.open == nil {
		t.open = &Turn{Speaker: speaker, At: t.cfg.Now()}
	}
	t.open.Text += text
}

// EndTurn seals the open turn, if any.
func (t *TurnTracker) EndTurn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealLocked()
	t.maybeFlushLocked()
}

// ParticipantTurns returns how many participant turns have been sealed.
func (t *TurnTracker) ParticipantTurns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.participant
}

// Drain seals the open turn and returns the unflushed remainder,
// clearing the buffer. The caller owns the returned batch; it is meant
// for the session completion payload.
func (t *TurnTracker) Drain() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealLocked()
	batch := t.buffer
	t.buffer = nil
	return batch
}

func (t *TurnTracker) sealLocked() {
	if t.open == nil {
		return
	}
	turn := *t.open
	t.open = nil
	turn.Number = t.next
	t.next++
	t.buffer = append(t.buffer, turn)

	if turn.Speaker == SpeakerParticipant {
		t.participant++
		if !t.handshakeDone {
			t.handshakeDone = true
		} else {
			if t.cfg.Submit != nil {
				t.cfg.Submit(t.answered, turn)
			}
			t.answered++
		}
	}

	if t.cfg.OnSeal != nil {
		t.cfg.OnSeal(turn)
	}
}

// maybeFlushLocked swaps out a full buffer and hands it to the flush
// hook on its own goroutine. Drain never flushes: whatever is buffered
// at drain time belongs to the completion payload instead.
func (t *TurnTracker) maybeFlushLocked() {
	if len(t.buffer) < t.cfg.FlushThreshold {
		return
	}
	batch := t.buffer
	t.buffer = nil
	if t.cfg.Flush != nil {
		go t.cfg.Flush(batch)
	}
}
