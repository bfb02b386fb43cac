package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/interview-live/pkg/live/protocol"
)

func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readSetup(t *testing.T, conn *websocket.Conn) protocol.ClientSetup {
	t.Helper()
	var setup protocol.ClientSetup
	if err := conn.ReadJSON(&setup); err != nil {
		t.Errorf("read setup: %v", err)
	}
	return setup
}

func collectEvents(t *testing.T, ch *Channel) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out collecting events, have %d", len(events))
		}
	}
}

func TestDialHandshakeAndEventStream(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()

		setup := readSetup(t, conn)
		if setup.Type != "setup" || setup.Model == "" {
			t.Errorf("unexpected setup frame: %+v", setup)
		}
		if setup.AudioIn.SampleRateHz != 16000 || setup.AudioOut.SampleRateHz != 24000 {
			t.Errorf("unexpected audio formats: in=%+v out=%+v", setup.AudioIn, setup.AudioOut)
		}

		_ = conn.WriteJSON(map[string]any{"type": "setup_complete", "session_id": "s-1"})
		_ = conn.WriteJSON(map[string]any{"type": "text_delta", "text": "hello"})
		_ = conn.WriteJSON(map[string]any{"type": "audio_delta", "data_b64": base64.StdEncoding.EncodeToString(pcm)})
		_ = conn.WriteJSON(map[string]any{"type": "output_transcription_delta", "text": "Hi there."})
		_ = conn.WriteJSON(map[string]any{"type": "turn_complete"})
		_ = conn.WriteJSON(map[string]any{"type": "tool_call", "id": "t-1", "name": "end_interview", "args": map[string]any{"reason": "done"}})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	events := collectEvents(t, ch)
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.EventType()
	}
	want := []string{
		"channel.connected",
		"channel.setup_complete",
		"channel.text_delta",
		"channel.audio_delta",
		"channel.output_transcription_delta",
		"channel.turn_complete",
		"channel.tool_call",
		"channel.disconnected",
	}
	if len(types) != len(want) {
		t.Fatalf("expected %d events %v, got %d: %v", len(want), want, len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], types[i])
		}
	}

	audio := events[3].(*AudioDeltaEvent)
	if len(audio.PCM) != len(pcm) {
		t.Errorf("expected %d PCM bytes, got %d", len(pcm), len(audio.PCM))
	}
	call := events[6].(*ToolCallEvent)
	if call.Name != "end_interview" || call.ID != "t-1" {
		t.Errorf("unexpected tool call %+v", call)
	}
	if err := ch.Err(); err != nil {
		t.Errorf("expected clean close, got %v", err)
	}
}

func TestSendAudioFrame(t *testing.T) {
	frames := make(chan protocol.ClientAudioFrame, 1)
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})

		var frame protocol.ClientAudioFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Errorf("read audio frame: %v", err)
			return
		}
		frames <- frame
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	samples := make([]float32, 4096)
	if err := ch.SendAudioFrame(samples); err != nil {
		t.Fatalf("SendAudioFrame: %v", err)
	}

	select {
	case frame := <-frames:
		if frame.Type != "audio_frame" {
			t.Errorf("expected audio_frame, got %q", frame.Type)
		}
		raw, decErr := base64.StdEncoding.DecodeString(frame.DataB64)
		if decErr != nil {
			t.Fatalf("decode frame payload: %v", decErr)
		}
		if len(raw) != 4096*2 {
			t.Errorf("expected %d PCM bytes, got %d", 4096*2, len(raw))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the audio frame")
	}
}

func TestDialRejectedWithServerError(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "error", "code": "unauthorized", "message": "bad api key"})
	})

	_, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	var ce *ChannelError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChannelError, got %v", err)
	}
	if ce.Code != ChannelAuth {
		t.Errorf("expected auth classification, got %s", ce.Code)
	}
}

func TestFatalServerErrorAbortsStream(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})
		_ = conn.WriteJSON(map[string]any{"type": "error", "code": "internal_error", "message": "model crashed"})
		// Hold the connection open: the client must close it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	events := collectEvents(t, ch)
	last := events[len(events)-1]
	disc, ok := last.(*DisconnectedEvent)
	if !ok {
		t.Fatalf("expected trailing DisconnectedEvent, got %T", last)
	}
	if disc.Cause == nil || disc.Cause.Code != ChannelServer {
		t.Errorf("unexpected disconnect cause %+v", disc.Cause)
	}
	if _, ok := events[len(events)-2].(*ErrorEvent); !ok {
		t.Errorf("expected ErrorEvent before disconnect, got %T", events[len(events)-2])
	}

	chErr := ch.Err()
	var ce *ChannelError
	if !errors.As(chErr, &ce) || ce.Code != ChannelServer || ce.Retryable {
		t.Fatalf("expected terminal non-retryable server error, got %v", chErr)
	}
}

func TestMalformedFrameAbortsStream(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})
		_ = conn.WriteJSON(map[string]any{"type": "telepathy_delta"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	events := collectEvents(t, ch)
	if _, ok := events[len(events)-1].(*DisconnectedEvent); !ok {
		t.Fatalf("expected stream to end after malformed frame, got %T", events[len(events)-1])
	}

	var ce *ChannelError
	if !errors.As(ch.Err(), &ce) || ce.Code != ChannelProtocol {
		t.Fatalf("expected protocol error, got %v", ch.Err())
	}
}

func TestRetryableServerErrorKeepsStreamAlive(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})
		_ = conn.WriteJSON(map[string]any{"type": "error", "code": "rate_limited", "message": "slow down", "retryable": true})
		_ = conn.WriteJSON(map[string]any{"type": "text_delta", "text": "still here"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	events := collectEvents(t, ch)
	sawText := false
	for _, ev := range events {
		if td, ok := ev.(*TextDeltaEvent); ok && td.Text == "still here" {
			sawText = true
		}
	}
	if !sawText {
		t.Error("expected the stream to continue past a retryable error")
	}
	if err := ch.Err(); err != nil {
		t.Errorf("retryable error must not become terminal, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})
		// Hold the connection open until the client closes.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sendErr := ch.SendText("too late")
	var ce *ChannelError
	if !errors.As(sendErr, &ce) {
		t.Fatalf("expected *ChannelError, got %v", sendErr)
	}
}

func TestToolResultPayload(t *testing.T) {
	results := make(chan protocol.ClientToolResult, 1)
	srv := newWSServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		_ = readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})

		var msg protocol.ClientToolResult
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("read tool result: %v", err)
			return
		}
		results <- msg
	})

	ch, err := Dial(context.Background(), DialRequest{URL: srv.URL, Model: "models/live-v1"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	if err := ch.SendToolResult("t-1", map[string]any{"status": "ok"}); err != nil {
		t.Fatalf("SendToolResult: %v", err)
	}

	select {
	case msg := <-results:
		if msg.ID != "t-1" {
			t.Errorf("expected id t-1, got %q", msg.ID)
		}
		var out map[string]string
		if err := json.Unmarshal(msg.Output, &out); err != nil {
			t.Fatalf("decode output: %v", err)
		}
		if out["status"] != "ok" {
			t.Errorf("unexpected output %v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the tool result")
	}
}
