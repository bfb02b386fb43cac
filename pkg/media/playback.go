package media

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/interview-live/pkg/audio"
)

// Sink is where scheduled audio goes. SpeakerSink is the device-backed
// implementation.
type Sink interface {
	Write(pcm []byte) (int, error)
	// Resume wakes a suspended output device. Called before first audio.
	Resume() error
	// Flush discards any buffered, not-yet-played audio.
	Flush()
	Close() error
}

// Mark reports the scheduled placement of one enqueued chunk.
type Mark struct {
	Start time.Time
	End   time.Time
	Bytes int
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	// Format is the output audio shape. Default: 24kHz mono 16-bit.
	Format audio.Config

	// Sink receives scheduled audio. Required.
	Sink Sink

	// OnMark observes each enqueued chunk's scheduled window.
	OnMark func(Mark)

	// Now is the clock. Default: time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Scheduler serializes model speech onto the output device. It keeps a
// monotonic next-play cursor so chunks never overlap and are never
// scheduled in the past: each chunk starts at max(cursor, now) and
// advances the cursor by its own duration.
type Scheduler struct {
	cfg SchedulerConfig

	mu      sync.Mutex
	cursor  time.Time
	resumed bool
	closed  bool
}

// NewScheduler returns a scheduler with the config's defaults filled in.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("scheduler sink must not be nil")
	}
	if cfg.Format.SampleRate == 0 {
		cfg.Format = audio.PlaybackConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{cfg: cfg}, nil
}

// Enqueue schedules one chunk of PCM for playback.
func (s *Scheduler) Enqueue(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scheduler is closed")
	}

	if !s.resumed {
		if err := s.cfg.Sink.Resume(); err != nil {
			return fmt.Errorf("resume output device: %w", err)
		}
		s.resumed = true
	}

	now := s.cfg.Now()
	start := s.cursor
	if start.Before(now) {
		start = now
	}
	end := start.Add(s.cfg.Format.Duration(len(pcm)))
	s.cursor = end

	if _, err := s.cfg.Sink.Write(pcm); err != nil {
		return fmt.Errorf("write to output device: %w", err)
	}
	if s.cfg.OnMark != nil {
		s.cfg.OnMark(Mark{Start: start, End: end, Bytes: len(pcm)})
	}
	return nil
}

// RemainingAt returns how much scheduled audio is still unplayed at t.
func (s *Scheduler) RemainingAt(t time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Before(t) {
		return 0
	}
	return s.cursor.Sub(t)
}

// Flush discards pending audio and resets the cursor. Used when the
// participant barges in over model speech.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.cfg.Sink.Flush()
	s.cursor = s.cfg.Now()
}

// Close releases the sink. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cfg.Sink.Close()
}
