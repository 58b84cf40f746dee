package env

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	AppPort string

	RedisURL     string
	DatabasePath string

	// Telephony provider (Twilio-compatible REST + media streams)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	PublicBaseURL    string // public HTTPS base, used to build callback and wss:// URLs

	// Realtime AI connection
	OpenAIApiKey         string
	RealtimeModel        string
	RealtimeVoice        string
	SystemInstructions   string
	GreetingText         string
	SessionUpdateDelayMs int
	NudgeDelayMs         int
	SilenceTimeoutSec    int

	// Bridge capabilities
	RecordCalls     bool
	TranscribeCalls bool
	ProviderTTS     bool

	// Transcription
	TranscriberDriver string // "whisper" or "deepgram"
	WhisperModel      string
	DeepgramApiKey    string

	RecordingsPath string

	DialDelaySec    int
	APIRateLimitRPM int

	LogLevel           string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine, environment variables alone are enough
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", "8080"),

		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabasePath: getEnv("DATABASE_PATH", "data/leads.db"),

		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", ""),

		OpenAIApiKey:  getEnv("OPENAI_API_KEY", ""),
		RealtimeModel: getEnv("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeVoice: getEnv("REALTIME_VOICE", "alloy"),
		SystemInstructions: getEnv("SYSTEM_INSTRUCTIONS",
			"You are a friendly assistant calling on behalf of our sales team. "+
				"Your goal is to have a natural conversation and collect the caller's "+
				"email address. Confirm the spelling back to them once they give it."),
		GreetingText:         getEnv("GREETING_TEXT", ""),
		SessionUpdateDelayMs: getEnvInt("SESSION_UPDATE_DELAY_MS", 250),
		NudgeDelayMs:         getEnvInt("NUDGE_DELAY_MS", 1500),
		SilenceTimeoutSec:    getEnvInt("SILENCE_TIMEOUT_SEC", 10),

		RecordCalls:     getEnvBool("RECORD_CALLS", true),
		TranscribeCalls: getEnvBool("TRANSCRIBE_CALLS", true),
		ProviderTTS:     getEnvBool("PROVIDER_TTS", false),

		TranscriberDriver: getEnv("TRANSCRIBER_DRIVER", "whisper"),
		WhisperModel:      getEnv("WHISPER_MODEL", "whisper-1"),
		DeepgramApiKey:    getEnv("DEEPGRAM_API_KEY", ""),

		RecordingsPath: getEnv("RECORDINGS_PATH", "data/recordings"),

		DialDelaySec:    getEnvInt("DIAL_DELAY_SEC", 2),
		APIRateLimitRPM: getEnvInt("API_RATE_LIMIT_RPM", 180),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
