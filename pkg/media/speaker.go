package media

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/vango-go/interview-live/pkg/audio"
)

// SpeakerSink plays PCM through the default output device via oto.
// The player pulls from an internal buffer through io.Reader.
type SpeakerSink struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	buf     []byte
	playing bool
	closed  bool
}

// NewSpeakerSink opens the output device for the given format.
func NewSpeakerSink(cfg audio.Config) (*SpeakerSink, error) {
	if cfg.SampleRate == 0 {
		cfg = audio.PlaybackConfig()
	}
	// ~100ms buffer: lower latency at some glitch risk.
	opts := &oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   4800,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &SpeakerSink{
		otoCtx: otoCtx,
		buf:    make([]byte, 0, cfg.BytesPerSecond()*2),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Resume wakes the audio context if the OS suspended it.
func (s *SpeakerSink) Resume() error {
	return s.otoCtx.Resume()
}

// Write buffers audio for playback, starting the player on first data.
func (s *SpeakerSink) Write(pcm []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("speaker is closed")
	}

	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return len(pcm), nil
}

// Read implements io.Reader for the oto player pull loop.
func (s *SpeakerSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// Feed silence so oto drains without an error pop.
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush discards buffered audio and tears down the current player so the
// next write starts clean.
func (s *SpeakerSink) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.mu.Unlock()

		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	s.mu.Unlock()
}

// Close stops playback and releases the player.
func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}
