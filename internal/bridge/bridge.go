// Package bridge connects one phone call's media stream to one realtime AI
// connection. It owns the session lifecycle: telephony events flow in on one
// side, AI events on the other, and the bridge serializes both onto a single
// Session while driving side effects (persistence, silence prompting,
// recording, post-call transcription).
package bridge

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/recorder"
	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/audio"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/metrics"
	"github.com/dialworks/leadagent/pkg/realtime"
	"github.com/dialworks/leadagent/pkg/utils"
)

const (
	silencePrompt = "There's been a pause. Gently check in with the caller and keep the conversation going."
	nudgePrompt   = "Continue the conversation naturally."

	// 20ms of G.711 u-law at 8kHz, one telephony media packet.
	mediaFrameBytes = 160

	defaultSilenceTimeout     = 10 * time.Second
	defaultSessionUpdateDelay = 250 * time.Millisecond
	defaultNudgeDelay         = 1500 * time.Millisecond
)

// Conn is an outbound message sink. Both the telephony WebSocket and the
// realtime AI client satisfy it. Close must be idempotent.
type Conn interface {
	Send(v interface{}) error
	Close() error
}

// LeadStore is the persistence surface the bridge needs. Keyed by canonical
// phone number.
type LeadStore interface {
	UpdateEmail(ctx context.Context, phone, email string) error
	UpdateStatus(ctx context.Context, phone, status string) error
	AppendConversation(ctx context.Context, phone, content string, fromAssistant bool) error
}

// Recorder finalizes a call's accumulated audio into playable files.
type Recorder interface {
	Finalize(streamID string, inbound, outbound []byte) (recorder.Recording, error)
}

// Transcriber converts a finished audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Capabilities selects which side effects a deployment runs. Provider TTS
// and AI audio output are mutually exclusive paths for the assistant's voice.
type Capabilities struct {
	RecordAudio         bool
	TranscribeAfterCall bool
	ProviderTTS         bool
}

type Options struct {
	Capabilities Capabilities
	Instructions string
	Voice        string
	Greeting     string

	SessionUpdateDelay time.Duration
	NudgeDelay         time.Duration
	SilenceTimeout     time.Duration
}

// Bridge drives one call session. All Session mutation happens under mu so
// the two read loops can race freely.
type Bridge struct {
	opts        Options
	telephony   Conn
	ai          Conn
	store       LeadStore
	recorder    Recorder
	transcriber Transcriber
	logger      *zap.Logger

	mu      sync.Mutex
	state   State
	closed  bool
	session Session
}

func New(telephony, ai Conn, leads LeadStore, rec Recorder, trans Transcriber, opts Options, log *zap.Logger) *Bridge {
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = defaultSilenceTimeout
	}
	if opts.SessionUpdateDelay <= 0 {
		opts.SessionUpdateDelay = defaultSessionUpdateDelay
	}
	if opts.NudgeDelay <= 0 {
		opts.NudgeDelay = defaultNudgeDelay
	}
	return &Bridge{
		opts:        opts,
		telephony:   telephony,
		ai:          ai,
		store:       leads,
		recorder:    rec,
		transcriber: trans,
		logger:      log,
		state:       StateActive,
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// InitAISession sends the session-configuration frame after a short delay.
// The delay avoids racing the provider's own session setup. Call once, in
// its own goroutine, after the AI socket opens.
func (b *Bridge) InitAISession() {
	time.Sleep(b.opts.SessionUpdateDelay)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= StateClosing {
		return
	}

	// With provider TTS the assistant's voice is synthesized downstream, so
	// the AI session runs text-only. Otherwise the AI speaks directly.
	modalities := []string{"text", "audio"}
	if b.opts.Capabilities.ProviderTTS {
		modalities = []string{"text"}
	}

	cfg := realtime.SessionConfig{
		Modalities:        modalities,
		Instructions:      b.opts.Instructions,
		Voice:             b.opts.Voice,
		InputAudioFormat:  "g711_ulaw",
		OutputAudioFormat: "g711_ulaw",
		TurnDetection:     &realtime.TurnDetection{Type: "server_vad"},
	}
	if err := b.ai.Send(realtime.NewSessionUpdate(cfg)); err != nil {
		b.logger.Warn("Failed to send session configuration", zap.Error(err))
		return
	}
	if b.state == StateActive {
		b.state = StateReady
	}
}

// HandleTelephonyMessage processes one raw telephony frame. Malformed
// payloads are logged and skipped; the session continues.
func (b *Bridge) HandleTelephonyMessage(ctx context.Context, raw []byte) {
	var event StreamEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		b.logger.Warn("Failed to parse stream event", zap.Error(err), zap.String("raw", string(raw)))
		return
	}

	metrics.BridgeEvents.WithLabelValues("telephony", event.Event).Inc()

	switch event.Event {
	case "start":
		b.handleStart(&event)
	case "media":
		b.handleMedia(ctx, &event)
	case "mark":
		b.handleMark(&event)
	case "stop":
		b.handleStop(ctx, &event)
	default:
		b.logger.Debug("Ignoring unknown stream event", zap.String("event", event.Event))
	}
}

func (b *Bridge) handleStart(event *StreamEvent) {
	if event.Start == nil {
		b.logger.Warn("Start event without payload")
		return
	}

	// Custom metadata first, callee number as fallback.
	raw := event.Start.CustomParameters["phone"]
	if raw == "" {
		raw = event.Start.To
	}
	phone := utils.CanonicalPhone(raw)
	if phone == "" && raw != "" {
		b.logger.Warn("Could not canonicalize caller number", logger.MaskPhoneIfPresent("raw", raw))
	}

	streamID := event.Start.StreamSID
	if streamID == "" {
		streamID = event.StreamSID
	}

	b.mu.Lock()
	b.session.reset(streamID, phone)
	b.session.CallSID = event.Start.CallSID
	b.state = StateStreaming
	b.mu.Unlock()

	metrics.CallsStarted.Inc()
	b.logger.Info("Stream started",
		zap.String("stream_id", streamID),
		zap.String("call_sid", event.Start.CallSID),
		logger.MaskPhoneIfPresent("phone", phone),
	)

	if b.opts.Greeting != "" {
		b.sendGreeting(streamID)
	}
}

// sendGreeting speaks first so the caller does not open to dead air. With
// provider TTS the text goes straight to the telephony side; otherwise the
// AI is prompted to say it.
func (b *Bridge) sendGreeting(streamID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opts.Capabilities.ProviderTTS {
		if err := b.telephony.Send(NewTTSFrame(streamID, b.opts.Greeting)); err != nil {
			b.logger.Warn("Failed to send greeting", zap.Error(err))
		}
		return
	}
	if err := b.ai.Send(realtime.NewTextAppend("Greet the caller: " + b.opts.Greeting)); err != nil {
		b.logger.Warn("Failed to send greeting prompt", zap.Error(err))
	}
}

func (b *Bridge) handleMedia(ctx context.Context, event *StreamEvent) {
	if event.Media == nil {
		return
	}

	b.mu.Lock()
	if b.state != StateStreaming || (event.StreamSID != "" && event.StreamSID != b.session.StreamID) {
		b.mu.Unlock()
		b.logger.Debug("Media for inactive stream", zap.String("stream_sid", event.StreamSID))
		return
	}

	chunk, err := audio.DecodeBase64(event.Media.Payload)
	if err != nil {
		b.mu.Unlock()
		b.logger.Warn("Failed to decode media payload", zap.Error(err))
		return
	}

	if ts, err := strconv.ParseInt(event.Media.Timestamp, 10, 64); err == nil && ts > b.session.LatestMediaTimestamp {
		b.session.LatestMediaTimestamp = ts
	}
	if b.opts.Capabilities.RecordAudio {
		b.session.IncomingAudio = append(b.session.IncomingAudio, chunk...)
	}

	if err := b.ai.Send(realtime.NewAudioAppend(event.Media.Payload)); err != nil {
		b.logger.Warn("Failed to forward audio to AI", zap.Error(err))
	}
	if event.Media.LastChunk {
		if err := b.ai.Send(realtime.NewSpeechStopped()); err != nil {
			b.logger.Warn("Failed to signal end of speech", zap.Error(err))
		}
	}

	b.session.rearmSilence(b.opts.SilenceTimeout, b.onSilence)
	phone := b.session.CustomerPhone
	b.mu.Unlock()

	metrics.AudioBytes.WithLabelValues("inbound").Add(float64(len(chunk)))

	// Best effort. Raw audio is not transcribed inline, so the entry is a
	// placeholder marking that the caller took a turn.
	if event.Media.LastChunk && phone != "" {
		if err := b.store.AppendConversation(ctx, phone, "[caller audio]", false); err != nil {
			b.logger.Warn("Failed to record caller turn", zap.Error(err))
		}
	}
}

func (b *Bridge) handleMark(event *StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.session.PendingMarks) == 0 {
		return
	}
	b.session.PendingMarks = b.session.PendingMarks[1:]
}

func (b *Bridge) handleStop(ctx context.Context, event *StreamEvent) {
	b.mu.Lock()
	if event.StreamSID != "" && b.session.StreamID != "" && event.StreamSID != b.session.StreamID {
		b.mu.Unlock()
		b.logger.Debug("Stop for unknown stream", zap.String("stream_sid", event.StreamSID))
		return
	}
	if b.state >= StateClosing {
		b.mu.Unlock()
		return
	}
	b.state = StateClosing
	b.session.cancelSilence()

	streamID := b.session.StreamID
	phone := b.session.CustomerPhone
	inbound := b.session.IncomingAudio
	outbound := b.session.OutgoingAudio
	b.session.IncomingAudio = nil
	b.session.OutgoingAudio = nil
	b.session.PendingMarks = nil
	b.mu.Unlock()

	b.finalizeCall(ctx, streamID, phone, inbound, outbound)

	b.mu.Lock()
	b.state = StateClosed
	b.mu.Unlock()

	metrics.CallsCompleted.Inc()
	b.logger.Info("Stream stopped", zap.String("stream_id", streamID))
}

func (b *Bridge) finalizeCall(ctx context.Context, streamID, phone string, inbound, outbound []byte) {
	if b.opts.Capabilities.RecordAudio && b.recorder != nil && (len(inbound) > 0 || len(outbound) > 0) {
		rec, err := b.recorder.Finalize(streamID, inbound, outbound)
		if err != nil {
			b.logger.Error("Failed to finalize recording", zap.Error(err), zap.String("stream_id", streamID))
		} else if b.opts.Capabilities.TranscribeAfterCall && b.transcriber != nil && rec.OutboundPath != "" {
			b.transcribeRecording(ctx, phone, rec.OutboundPath)
		}
	}

	if phone != "" {
		if err := b.store.UpdateStatus(ctx, phone, store.StatusCallCompleted); err != nil {
			b.logger.Warn("Failed to update lead status", zap.Error(err), logger.MaskPhone("phone", phone))
		}
	}
}

func (b *Bridge) transcribeRecording(ctx context.Context, phone, path string) {
	text, err := b.transcriber.Transcribe(ctx, path)
	if err != nil {
		metrics.Transcriptions.WithLabelValues("error").Inc()
		b.logger.Warn("Transcription failed", zap.Error(err), zap.String("path", path))
		return
	}
	metrics.Transcriptions.WithLabelValues("ok").Inc()

	if phone == "" || text == "" {
		return
	}
	if err := b.store.AppendConversation(ctx, phone, text, true); err != nil {
		b.logger.Warn("Failed to persist transcript", zap.Error(err))
	}
}

// HandleAIMessage processes one raw frame from the realtime AI connection.
func (b *Bridge) HandleAIMessage(ctx context.Context, raw []byte) {
	var event realtime.ServerEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		b.logger.Warn("Failed to parse realtime event", zap.Error(err), zap.String("raw", string(raw)))
		return
	}

	metrics.BridgeEvents.WithLabelValues("ai", event.Type).Inc()

	switch event.Type {
	case realtime.TypeResponseTextDelta:
		b.mu.Lock()
		b.session.ResponseText.WriteString(event.Delta)
		b.mu.Unlock()
	case realtime.TypeResponseContentDone:
		b.handleTurnComplete(ctx)
	case realtime.TypeResponseAudioDelta:
		b.handleAudioDelta(&event)
	default:
		b.logger.Debug("Ignoring realtime event", zap.String("type", event.Type))
	}
}

// handleTurnComplete takes the accumulated text as the full assistant
// utterance, persists it, and scans it for an email address.
func (b *Bridge) handleTurnComplete(ctx context.Context) {
	b.mu.Lock()
	text := strings.TrimSpace(b.session.ResponseText.String())
	b.session.ResponseText.Reset()
	streamID := b.session.StreamID
	phone := b.session.CustomerPhone
	b.mu.Unlock()

	if text == "" {
		return
	}

	b.logger.Info("Assistant turn complete",
		zap.String("stream_id", streamID),
		zap.Int("chars", len(text)),
	)

	if phone != "" {
		if err := b.store.AppendConversation(ctx, phone, text, true); err != nil {
			b.logger.Warn("Failed to persist assistant turn", zap.Error(err))
		}
		if email := ExtractEmail(text); email != "" {
			metrics.EmailsExtracted.Inc()
			b.logger.Info("Email extracted", zap.String("stream_id", streamID))
			if err := b.store.UpdateEmail(ctx, phone, email); err != nil {
				b.logger.Warn("Failed to update lead email", zap.Error(err))
			}
		}
	}

	if b.opts.Capabilities.ProviderTTS {
		b.mu.Lock()
		if err := b.telephony.Send(NewTTSFrame(streamID, text)); err != nil {
			b.logger.Warn("Failed to send tts frame", zap.Error(err))
		}
		b.mu.Unlock()
	}

	// Keep the conversation moving instead of stalling on caller input.
	time.AfterFunc(b.opts.NudgeDelay, b.nudge)
}

func (b *Bridge) nudge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state >= StateClosing {
		return
	}
	if err := b.ai.Send(realtime.NewTextAppend(nudgePrompt)); err != nil {
		b.logger.Warn("Failed to send nudge", zap.Error(err))
	}
}

func (b *Bridge) handleAudioDelta(event *realtime.ServerEvent) {
	if event.Delta == "" {
		return
	}
	if b.opts.Capabilities.ProviderTTS {
		// The provider synthesizes the assistant's voice; relaying AI audio
		// as well would play each turn twice.
		return
	}
	chunk, err := audio.DecodeBase64(event.Delta)
	if err != nil {
		b.logger.Warn("Failed to decode assistant audio", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateStreaming {
		return
	}

	if b.opts.Capabilities.RecordAudio {
		b.session.OutgoingAudio = append(b.session.OutgoingAudio, chunk...)
	}
	if !b.session.responseStartSet {
		b.session.ResponseStartTimestamp = b.session.LatestMediaTimestamp
		b.session.responseStartSet = true
	}
	if event.ItemID != "" {
		b.session.LastAssistantItemID = event.ItemID
	}

	// Oversized deltas are re-split into 20ms frames so the telephony side
	// never receives more than one packet's worth of audio per media message.
	for _, frame := range audio.ChunkBytes(chunk, mediaFrameBytes) {
		if err := b.telephony.Send(NewMediaFrame(b.session.StreamID, audio.EncodeBase64(frame))); err != nil {
			b.logger.Warn("Failed to forward assistant audio", zap.Error(err))
			return
		}
	}
	metrics.AudioBytes.WithLabelValues("outbound").Add(float64(len(chunk)))

	markName := uuid.NewString()
	if err := b.telephony.Send(NewMarkFrame(b.session.StreamID, markName)); err != nil {
		b.logger.Warn("Failed to send mark", zap.Error(err))
		return
	}
	b.session.PendingMarks = append(b.session.PendingMarks, markName)
}

// onSilence fires when no inbound media arrived for the full timeout window.
func (b *Bridge) onSilence() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateStreaming {
		return
	}

	metrics.SilencePrompts.Inc()
	b.logger.Info("Silence timeout, prompting assistant", zap.String("stream_id", b.session.StreamID))
	if err := b.ai.Send(realtime.NewTextAppend(silencePrompt)); err != nil {
		b.logger.Warn("Failed to send silence prompt", zap.Error(err))
	}
}

// Close tears the session down: timers cancelled, both connections closed.
// Safe to call from either read loop, any number of times.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.state = StateClosed
	b.session.cancelSilence()
	b.mu.Unlock()

	if err := b.ai.Close(); err != nil {
		b.logger.Debug("AI connection close", zap.Error(err))
	}
	if err := b.telephony.Close(); err != nil {
		b.logger.Debug("Telephony connection close", zap.Error(err))
	}
}

// WSConn adapts a gorilla WebSocket connection to Conn. Writes are
// serialized; gorilla allows only one concurrent writer.
type WSConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (w *WSConn) Send(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (w *WSConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}
