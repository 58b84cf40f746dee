package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// WhisperTranscriber transcribes recordings through the OpenAI audio API
type WhisperTranscriber struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

func NewWhisperTranscriber(apiKey, model string, timeout time.Duration, logger *zap.Logger) *WhisperTranscriber {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperTranscriber{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		timeout: timeout,
		logger:  logger,
	}
}

func (w *WhisperTranscriber) IsAvailable() bool {
	return w.apiKey != ""
}

func (w *WhisperTranscriber) Name() string {
	return "whisper"
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !w.IsAvailable() {
		return "", fmt.Errorf("whisper transcriber not available, OPENAI_API_KEY not set")
	}

	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(audioData) == 0 {
		return "", fmt.Errorf("audio file is empty")
	}

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", w.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.baseURL+"/audio/transcriptions", &requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := &http.Client{Timeout: w.timeout}
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
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	w.logger.Debug("Transcription completed",
		zap.String("file", filepath.Base(audioPath)),
		zap.Int("chars", len(result.Text)),
	)

	return result.Text, nil
}
