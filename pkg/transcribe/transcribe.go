// Package transcribe converts finished call recordings to text.
package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	IsAvailable() bool
	Name() string
}

// New builds a transcriber by driver name.
func New(driver, openAIKey, whisperModel, deepgramKey string, timeout time.Duration, logger *zap.Logger) (Transcriber, error) {
	switch strings.ToLower(driver) {
	case "", "whisper":
		return NewWhisperTranscriber(openAIKey, whisperModel, timeout, logger), nil
	case "deepgram":
		return NewDeepgramTranscriber(deepgramKey, timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcriber driver: %s", driver)
	}
}
