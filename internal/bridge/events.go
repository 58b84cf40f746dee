package bridge

// StreamEvent is the envelope for telephony media-stream events. Events
// arrive as JSON text frames; only the payload matching the event kind is
// populated.
type StreamEvent struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
	Mark      *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload carries stream metadata. The customer's number may arrive in
// custom parameters or in the callee field, or not at all.
type StartPayload struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid,omitempty"`
	To               string            `json:"to,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 u-law audio
	LastChunk bool   `json:"last_chunk,omitempty"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

// Outbound frames sent back to the telephony side.

type MediaFrame struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     MediaPayload `json:"media"`
}

func NewMediaFrame(streamSID, payload string) MediaFrame {
	return MediaFrame{Event: "media", StreamSID: streamSID, Media: MediaPayload{Payload: payload}}
}

type MarkFrame struct {
	Event     string      `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      MarkPayload `json:"mark"`
}

func NewMarkFrame(streamSID, name string) MarkFrame {
	return MarkFrame{Event: "mark", StreamSID: streamSID, Mark: MarkPayload{Name: name}}
}

// TTSFrame delegates speech synthesis to the telephony provider. Used only
// when the deployment runs with provider-side TTS instead of AI audio.
type TTSFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Text      string `json:"text"`
}

func NewTTSFrame(streamSID, text string) TTSFrame {
	return TTSFrame{Event: "tts", StreamSID: streamSID, Text: text}
}
