package live

// Mode describes what the session is doing right now, for UI display.
type Mode int

const (
	ModeIdle Mode = iota
	ModeListening
	ModeThinking
	ModeSpeaking
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeListening:
		return "LISTENING"
	case ModeThinking:
		return "THINKING"
	case ModeSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// SpeechLevelThreshold is the capture RMS level above which the
// participant counts as speaking. Quiet rooms meter well below this;
// speech at normal distance meters well above.
const SpeechLevelThreshold = 0.02

// ActivityMode derives the display mode from observable session facts.
// It owns no state: model speech wins, then participant speech (capture
// level over the threshold), and everything outside the active state is
// idle.
func ActivityMode(state SessionState, capturing bool, level float64, modelSpeaking bool) Mode {
	if state != StateActive {
		return ModeIdle
	}
	if modelSpeaking {
		return ModeSpeaking
	}
	if capturing && level > SpeechLevelThreshold {
		return ModeListening
	}
	return ModeThinking
}
