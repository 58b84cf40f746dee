package realtime

// Frame types exchanged with the realtime AI connection. All frames are JSON
// over one persistent WebSocket.
const (
	TypeSessionUpdate = "session.update"
	TypeAudioAppend   = "input_audio_buffer.append"
	TypeSpeechStopped = "input_audio_buffer.speech_stopped"
	TypeTextAppend    = "input_text.append"

	TypeResponseTextDelta   = "response.text.delta"
	TypeResponseContentDone = "response.content.done"
	TypeResponseAudioDelta  = "response.audio.delta"
)

// SessionConfig declares audio format, voice, instructions and modalities for
// the session. Turn detection is server-driven: the AI side decides when the
// caller has stopped speaking.
type SessionConfig struct {
	Modalities        []string       `json:"modalities"`
	Instructions      string         `json:"instructions"`
	Voice             string         `json:"voice"`
	InputAudioFormat  string         `json:"input_audio_format"`
	OutputAudioFormat string         `json:"output_audio_format"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64 audio payload
}

type SpeechStopped struct {
	Type string `json:"type"`
}

type TextAppend struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ServerEvent is the inbound frame envelope. Only the fields relevant to the
// bridge are decoded.
type ServerEvent struct {
	Type   string `json:"type"`
	Delta  string `json:"delta,omitempty"`
	ItemID string `json:"item_id,omitempty"`
}

func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{Type: TypeSessionUpdate, Session: cfg}
}

func NewAudioAppend(base64Audio string) AudioAppend {
	return AudioAppend{Type: TypeAudioAppend, Audio: base64Audio}
}

func NewSpeechStopped() SpeechStopped {
	return SpeechStopped{Type: TypeSpeechStopped}
}

func NewTextAppend(text string) TextAppend {
	return TextAppend{Type: TypeTextAppend, Text: text}
}
