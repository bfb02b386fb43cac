// Package protocol defines the JSON wire format spoken over the duplex
// interview channel. Every frame is an envelope with a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ProtocolVersion1 = "1"

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes negotiated live audio shape.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// ToolDeclaration advertises a tool the model may call during the session.
type ToolDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ClientSetup opens a session: model, system prompt, audio shape, tools.
type ClientSetup struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Model           string            `json:"model"`
	System          string            `json:"system,omitempty"`
	Voice           string            `json:"voice,omitempty"`
	AudioIn         AudioFormat       `json:"audio_in"`
	AudioOut        AudioFormat       `json:"audio_out"`
	Tools           []ToolDeclaration `json:"tools,omitempty"`
}

type ClientAudioFrame struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq,omitempty"`
	DataB64 string `json:"data_b64"`
}

type ClientText struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ClientToolResult struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Output json.RawMessage `json:"output"`
}

type ServerSetupComplete struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

type ServerTextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerAudioDelta struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

// ServerOutputTranscriptionDelta carries the transcript of model speech.
type ServerOutputTranscriptionDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerInputTranscriptionDelta carries the transcript of participant speech.
type ServerInputTranscriptionDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerTurnComplete struct {
	Type string `json:"type"`
}

type ServerToolCall struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type ServerError struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// DecodeServerMessage parses one inbound frame into its typed message.
func DecodeServerMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "setup_complete":
		var msg ServerSetupComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid setup_complete", "")
		}
		return msg, nil
	case "text_delta":
		var msg ServerTextDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text_delta", "")
		}
		return msg, nil
	case "audio_delta":
		var msg ServerAudioDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_delta", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_delta.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "output_transcription_delta":
		var msg ServerOutputTranscriptionDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid output_transcription_delta", "")
		}
		return msg, nil
	case "input_transcription_delta":
		var msg ServerInputTranscriptionDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid input_transcription_delta", "")
		}
		return msg, nil
	case "turn_complete":
		var msg ServerTurnComplete
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid turn_complete", "")
		}
		return msg, nil
	case "tool_call":
		var msg ServerToolCall
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid tool_call", "")
		}
		if strings.TrimSpace(msg.Name) == "" {
			return nil, badRequest("tool_call.name is required", "name")
		}
		return msg, nil
	case "error":
		var msg ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid error frame", "")
		}
		return msg, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

func ValidateSetup(msg ClientSetup) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("setup.protocol_version is required", "protocol_version")
	}
	if strings.TrimSpace(msg.Model) == "" {
		return badRequest("setup.model is required", "model")
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badRequest("setup.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz <= 0 {
		return badRequest("setup.audio_in.sample_rate_hz must be > 0", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels <= 0 {
		return badRequest("setup.audio_in.channels must be > 0", "audio_in.channels")
	}
	if strings.TrimSpace(msg.AudioOut.Encoding) == "" {
		return badRequest("setup.audio_out.encoding is required", "audio_out.encoding")
	}
	if msg.AudioOut.SampleRateHz <= 0 {
		return badRequest("setup.audio_out.sample_rate_hz must be > 0", "audio_out.sample_rate_hz")
	}
	if msg.AudioOut.Channels <= 0 {
		return badRequest("setup.audio_out.channels must be > 0", "audio_out.channels")
	}
	for i, tool := range msg.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			return badRequest("setup.tools entries must have a name", fmt.Sprintf("tools[%d].name", i))
		}
	}
	return nil
}
