package live

import (
	"fmt"
	"strings"
)

// ChannelErrorCode classifies duplex channel failures.
type ChannelErrorCode string

const (
	ChannelAuth     ChannelErrorCode = "auth"
	ChannelQuota    ChannelErrorCode = "quota"
	ChannelNetwork  ChannelErrorCode = "network"
	ChannelProtocol ChannelErrorCode = "protocol"
	ChannelServer   ChannelErrorCode = "server"
)

// ChannelError is a classified duplex channel failure.
type ChannelError struct {
	Code      ChannelErrorCode
	Retryable bool
	Message   string
	Err       error
}

func (e *ChannelError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("channel %s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("channel %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("channel %s", e.Code)
}

func (e *ChannelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// classifyServerCode maps a server error code to the channel taxonomy.
// Quota and server-side failures are retryable in a later session; auth
// and protocol failures are not.
func classifyServerCode(code, message string, retryable bool) *ChannelError {
	c := strings.ToLower(strings.TrimSpace(code))
	switch {
	case strings.Contains(c, "auth") || strings.Contains(c, "unauthorized") || strings.Contains(c, "permission"):
		return &ChannelError{Code: ChannelAuth, Message: message}
	case strings.Contains(c, "quota") || strings.Contains(c, "rate") || strings.Contains(c, "exhausted"):
		return &ChannelError{Code: ChannelQuota, Retryable: true, Message: message}
	case strings.Contains(c, "bad_request") || strings.Contains(c, "unsupported") || strings.Contains(c, "invalid"):
		return &ChannelError{Code: ChannelProtocol, Message: message}
	default:
		return &ChannelError{Code: ChannelServer, Retryable: retryable, Message: message}
	}
}

func networkError(err error) *ChannelError {
	return &ChannelError{Code: ChannelNetwork, Retryable: true, Err: err}
}

func protocolError(err error) *ChannelError {
	return &ChannelError{Code: ChannelProtocol, Err: err}
}
