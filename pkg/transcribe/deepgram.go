package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// DeepgramTranscriber transcribes recordings through the Deepgram API
type DeepgramTranscriber struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

func NewDeepgramTranscriber(apiKey string, timeout time.Duration, logger *zap.Logger) *DeepgramTranscriber {
	return &DeepgramTranscriber{
		apiKey:  apiKey,
		baseURL: "https://api.deepgram.com/v1",
		timeout: timeout,
		logger:  logger,
	}
}

func (d *DeepgramTranscriber) IsAvailable() bool {
	return d.apiKey != ""
}

func (d *DeepgramTranscriber) Name() string {
	return "deepgram"
}

func (d *DeepgramTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !d.IsAvailable() {
		return "", fmt.Errorf("deepgram transcriber not available, DEEPGRAM_API_KEY not set")
	}

	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(audioData) == 0 {
		return "", fmt.Errorf("audio file is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	url := d.baseURL + "/listen?model=nova-2&punctuate=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audioData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	client := &http.Client{Timeout: d.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error: %s (status %d)", string(body), resp.StatusCode)
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("no transcript in response")
	}

	transcript := result.Results.Channels[0].Alternatives[0].Transcript
	d.logger.Debug("Transcription completed", zap.Int("chars", len(transcript)))

	return transcript, nil
}
