// Package media owns the audio devices: microphone capture and speaker
// playback scheduling.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/interview-live/pkg/audio"
)

// FrameSamples is the fixed capture frame size. At 16kHz mono this is
// 256ms of audio per frame.
const FrameSamples = 4096

// CaptureErrorCode classifies capture failures.
type CaptureErrorCode string

const (
	CaptureDenied       CaptureErrorCode = "denied"
	CaptureDeviceFailed CaptureErrorCode = "device_failed"
)

// CaptureError is a classified microphone failure.
type CaptureError struct {
	Code CaptureErrorCode
	Err  error
}

func (e *CaptureError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("capture %s: %v", e.Code, e.Err)
}

func (e *CaptureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func classifyCaptureErr(err error) *CaptureError {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "denied") || strings.Contains(msg, "permission") || strings.Contains(msg, "unauthorized") {
		return &CaptureError{Code: CaptureDenied, Err: err}
	}
	return &CaptureError{Code: CaptureDeviceFailed, Err: err}
}

// Frame is one fixed-size block of captured audio with its energy level.
type Frame struct {
	Samples []float32
	Level   float64
}

// Source produces capture frames. CaptureEngine is the device-backed
// implementation; tests script their own.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Frames() <-chan Frame
}

// CaptureEngine reads the microphone at 16kHz mono and assembles
// fixed-size frames. The device callback never blocks: if the consumer
// falls behind, whole frames are dropped.
type CaptureEngine struct {
	logger *slog.Logger
	cfg    audio.Config

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	frames  chan Frame
	asm     frameAssembler
	started bool
	stopped bool
}

// NewCaptureEngine returns an engine for the canonical capture format.
func NewCaptureEngine(logger *slog.Logger) *CaptureEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureEngine{
		logger: logger,
		cfg:    audio.CaptureConfig(),
		frames: make(chan Frame, 16),
		asm:    frameAssembler{size: FrameSamples},
	}
}

// Frames yields assembled capture frames.
func (e *CaptureEngine) Frames() <-chan Frame {
	return e.frames
}

// Start opens the capture device and begins producing frames.
func (e *CaptureEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if e.stopped {
		return &CaptureError{Code: CaptureDeviceFailed, Err: fmt.Errorf("engine already stopped")}
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return classifyCaptureErr(fmt.Errorf("init audio context: %w", err))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(e.cfg.Channels)
	deviceConfig.SampleRate = uint32(e.cfg.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			e.onSamples(pInputSamples)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return classifyCaptureErr(fmt.Errorf("init capture device: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return classifyCaptureErr(fmt.Errorf("start capture device: %w", err))
	}

	e.ctx = malgoCtx
	e.device = device
	e.started = true
	e.logger.Debug("capture started", "sample_rate", e.cfg.SampleRate, "frame_samples", FrameSamples)
	return nil
}

// Stop halts the device and closes the frame stream. Safe to call more
// than once.
//
// The device is stopped outside e.mu: device.Stop blocks until the
// callback thread halts, and the callback itself takes e.mu, so holding
// the lock across the stop would deadlock against an in-flight callback.
func (e *CaptureEngine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	device := e.device
	malgoCtx := e.ctx
	e.device = nil
	e.ctx = nil
	e.started = false
	e.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if malgoCtx != nil {
		_ = malgoCtx.Uninit()
	}

	// Any callback that was already inside onSamples finishes under the
	// lock before the channel closes; later callbacks see stopped.
	e.mu.Lock()
	close(e.frames)
	e.mu.Unlock()
	return nil
}

func (e *CaptureEngine) onSamples(pcm []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	ready := e.asm.push(audio.DecodePCM16(pcm))

	for _, samples := range ready {
		frame := Frame{Samples: samples, Level: clampLevel(audio.RMS(samples))}
		select {
		case e.frames <- frame:
		default:
			// Consumer is behind; dropping beats stalling the device callback.
		}
	}
}

func clampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// frameAssembler buffers samples until a full frame is available.
type frameAssembler struct {
	size    int
	pending []float32
}

// push appends samples and returns every completed frame.
func (a *frameAssembler) push(samples []float32) [][]float32 {
	a.pending = append(a.pending, samples...)
	var out [][]float32
	for len(a.pending) >= a.size {
		frame := make([]float32, a.size)
		copy(frame, a.pending[:a.size])
		a.pending = a.pending[a.size:]
		out = append(out, frame)
	}
	return out
}
