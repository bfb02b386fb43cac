package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/interview-live/pkg/audio"
	"github.com/vango-go/interview-live/pkg/live/protocol"
)

const defaultConnectTimeout = 15 * time.Second

// Transport is the duplex connection the session controller drives.
// Channel is the production implementation; tests use scripted fakes.
type Transport interface {
	Events() <-chan Event
	SendAudioFrame(samples []float32) error
	SendText(content string) error
	SendToolResult(id string, output any) error
	Close() error
	Err() error
}

// DialRequest configures a duplex model connection.
type DialRequest struct {
	URL    string
	APIKey string
	Model  string
	System string
	Voice  string
	Tools  []protocol.ToolDeclaration
}

// Channel is a live duplex websocket connection to the model service.
// There is no automatic reconnection: a disconnect surfaces as a
// DisconnectedEvent and the owner decides what happens next.
type Channel struct {
	conn *websocket.Conn

	events  chan Event
	done    chan struct{}
	closing chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens a duplex connection and completes the setup handshake.
// The returned channel has already emitted ConnectedEvent and
// SetupCompleteEvent to its event stream.
func Dial(ctx context.Context, req DialRequest) (*Channel, error) {
	wsURL, err := websocketEndpoint(req.URL)
	if err != nil {
		return nil, err
	}
	setup := protocol.ClientSetup{
		Type:            "setup",
		ProtocolVersion: protocol.ProtocolVersion1,
		Model:           strings.TrimSpace(req.Model),
		System:          req.System,
		Voice:           strings.TrimSpace(req.Voice),
		AudioIn: protocol.AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: audio.CaptureConfig().SampleRate,
			Channels:     1,
		},
		AudioOut: protocol.AudioFormat{
			Encoding:     "pcm_s16le",
			SampleRateHz: audio.PlaybackConfig().SampleRate,
			Channels:     1,
		},
		Tools: req.Tools,
	}
	if err := protocol.ValidateSetup(setup); err != nil {
		return nil, protocolError(err)
	}

	headers := make(http.Header)
	if strings.TrimSpace(req.APIKey) != "" {
		headers.Set("Authorization", "Bearer "+strings.TrimSpace(req.APIKey))
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &ChannelError{Code: ChannelAuth, Message: fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), Err: err}
		}
		return nil, networkError(fmt.Errorf("websocket dial: %w", err))
	}

	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, networkError(fmt.Errorf("send setup: %w", err))
	}

	_ = conn.SetReadDeadline(time.Now().Add(defaultConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, networkError(fmt.Errorf("read setup_complete: %w", err))
	}
	_ = conn.SetReadDeadline(time.Time{})

	first, err := protocol.DecodeServerMessage(payload)
	if err != nil {
		_ = conn.Close()
		return nil, protocolError(err)
	}
	switch msg := first.(type) {
	case protocol.ServerSetupComplete:
		c := &Channel{
			conn:    conn,
			events:  make(chan Event, 256),
			done:    make(chan struct{}),
			closing: make(chan struct{}),
		}
		c.emit(&ConnectedEvent{SessionID: msg.SessionID})
		c.emit(&SetupCompleteEvent{SessionID: msg.SessionID})
		go c.readLoop()
		return c, nil
	case protocol.ServerError:
		_ = conn.Close()
		return nil, classifyServerCode(msg.Code, msg.Message, msg.Retryable)
	default:
		_ = conn.Close()
		return nil, protocolError(fmt.Errorf("unexpected first frame %T", first))
	}
}

// Events yields the inbound event stream. The stream is closed when the
// connection ends; the last event before close is DisconnectedEvent.
func (c *Channel) Events() <-chan Event {
	if c == nil {
		return nil
	}
	return c.events
}

// SendAudioFrame ships one frame of captured audio to the model.
func (c *Channel) SendAudioFrame(samples []float32) error {
	if c == nil {
		return fmt.Errorf("channel must not be nil")
	}
	frame := protocol.ClientAudioFrame{
		Type:    "audio_frame",
		DataB64: base64.StdEncoding.EncodeToString(audio.EncodePCM16(samples)),
	}
	return c.sendJSON(frame)
}

// SendText sends a text message into the conversation.
func (c *Channel) SendText(content string) error {
	if c == nil {
		return fmt.Errorf("channel must not be nil")
	}
	return c.sendJSON(protocol.ClientText{Type: "text", Content: content})
}

// SendToolResult responds to a tool call.
func (c *Channel) SendToolResult(id string, output any) error {
	if c == nil {
		return fmt.Errorf("channel must not be nil")
	}
	raw, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal tool result: %w", err)
	}
	return c.sendJSON(protocol.ClientToolResult{Type: "tool_result", ID: strings.TrimSpace(id), Output: raw})
}

func (c *Channel) sendJSON(v any) error {
	if c.closed.Load() {
		return &ChannelError{Code: ChannelNetwork, Message: "channel is closed"}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return networkError(err)
	}
	return nil
}

// Close closes the connection and waits for the read loop to drain.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal channel error, if any. Blocks until the
// connection has ended.
func (c *Channel) Err() error {
	if c == nil {
		return nil
	}
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(&DisconnectedEvent{})
				return
			}
			cause := networkError(err)
			c.setErr(cause)
			c.emit(&DisconnectedEvent{Cause: cause})
			return
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			c.abort(protocolError(err))
			return
		}

		switch m := msg.(type) {
		case protocol.ServerSetupComplete:
			c.emit(&SetupCompleteEvent{SessionID: m.SessionID})
		case protocol.ServerTextDelta:
			c.emit(&TextDeltaEvent{Text: m.Text})
		case protocol.ServerAudioDelta:
			pcm, decErr := base64.StdEncoding.DecodeString(m.DataB64)
			if decErr != nil {
				c.emit(&ErrorEvent{Err: protocolError(fmt.Errorf("decode audio_delta: %w", decErr))})
				continue
			}
			c.emit(&AudioDeltaEvent{PCM: pcm})
		case protocol.ServerOutputTranscriptionDelta:
			c.emit(&OutputTranscriptionDeltaEvent{Text: m.Text})
		case protocol.ServerInputTranscriptionDelta:
			c.emit(&InputTranscriptionDeltaEvent{Text: m.Text})
		case protocol.ServerTurnComplete:
			c.emit(&TurnCompleteEvent{})
		case protocol.ServerToolCall:
			c.emit(&ToolCallEvent{ID: m.ID, Name: m.Name, Args: m.Args})
		case protocol.ServerError:
			cause := classifyServerCode(m.Code, m.Message, m.Retryable)
			if cause.Retryable {
				c.emit(&ErrorEvent{Err: cause})
				continue
			}
			c.abort(cause)
			return
		}
	}
}

// abort records a fatal inbound error and tears the connection down:
// error, then disconnected, then the stream closes. Malformed frames and
// non-retryable server errors cannot leave the session live.
func (c *Channel) abort(cause *ChannelError) {
	c.setErr(cause)
	c.emit(&ErrorEvent{Err: cause})
	_ = c.conn.Close()
	c.emit(&DisconnectedEvent{Cause: cause})
}

// emit blocks rather than dropping: losing a control event such as
// turn_complete would corrupt turn accounting. The closing channel
// releases the read loop if the consumer is gone at shutdown.
func (c *Channel) emit(event Event) {
	if event == nil {
		return
	}
	select {
	case c.events <- event:
	case <-c.closing:
	}
}

func websocketEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", protocolError(fmt.Errorf("invalid channel URL: %w", err))
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", protocolError(fmt.Errorf("channel URL must use http(s) or ws(s)"))
	}
	return u.String(), nil
}
