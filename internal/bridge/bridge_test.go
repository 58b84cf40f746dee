package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/recorder"
	"github.com/dialworks/leadagent/pkg/realtime"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []interface{}
	closed int
}

func (f *fakeConn) Send(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeConn) count(match func(interface{}) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.sent {
		if match(v) {
			n++
		}
	}
	return n
}

func isTextAppend(text string) func(interface{}) bool {
	return func(v interface{}) bool {
		ta, ok := v.(realtime.TextAppend)
		return ok && ta.Text == text
	}
}

type fakeStore struct {
	mu            sync.Mutex
	emails        map[string]string
	statuses      map[string]string
	conversations []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{emails: make(map[string]string), statuses: make(map[string]string)}
}

func (f *fakeStore) UpdateEmail(_ context.Context, phone, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[phone] = email
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, phone, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[phone] = status
	return nil
}

func (f *fakeStore) AppendConversation(_ context.Context, phone, content string, fromAssistant bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = append(f.conversations, content)
	return nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRecorder) Finalize(streamID string, inbound, outbound []byte) (recorder.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return recorder.Recording{OutboundPath: streamID + "_outbound.wav"}, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "transcript of " + audioPath, nil
}

type testBridge struct {
	bridge      *Bridge
	telephony   *fakeConn
	ai          *fakeConn
	store       *fakeStore
	recorder    *fakeRecorder
	transcriber *fakeTranscriber
}

func newTestBridge(t *testing.T, opts Options) *testBridge {
	t.Helper()
	tb := &testBridge{
		telephony:   &fakeConn{},
		ai:          &fakeConn{},
		store:       newFakeStore(),
		recorder:    &fakeRecorder{},
		transcriber: &fakeTranscriber{},
	}
	tb.bridge = New(tb.telephony, tb.ai, tb.store, tb.recorder, tb.transcriber, opts, zap.NewNop())
	return tb
}

func startEvent(streamSID, phone string) []byte {
	raw, _ := json.Marshal(StreamEvent{
		Event: "start",
		Start: &StartPayload{
			StreamSID:        streamSID,
			CallSID:          "CA123",
			CustomParameters: map[string]string{"phone": phone},
		},
	})
	return raw
}

func mediaEvent(streamSID string, timestamp int64, lastChunk bool) []byte {
	raw, _ := json.Marshal(StreamEvent{
		Event:     "media",
		StreamSID: streamSID,
		Media: &MediaPayload{
			Timestamp: fmt.Sprintf("%d", timestamp),
			Payload:   base64.StdEncoding.EncodeToString(make([]byte, 160)),
			LastChunk: lastChunk,
		},
	})
	return raw
}

func stopEvent(streamSID string) []byte {
	raw, _ := json.Marshal(StreamEvent{Event: "stop", StreamSID: streamSID})
	return raw
}

func aiEvent(eventType, delta, itemID string) []byte {
	raw, _ := json.Marshal(map[string]string{"type": eventType, "delta": delta, "item_id": itemID})
	return raw
}

func TestStartThenStopNoMedia(t *testing.T) {
	tb := newTestBridge(t, Options{
		Capabilities: Capabilities{RecordAudio: true, TranscribeAfterCall: true},
	})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, stopEvent("MS1"))

	if tb.recorder.calls != 0 {
		t.Errorf("recorder called %d times, want 0 for a call with no media", tb.recorder.calls)
	}
	if tb.transcriber.calls != 0 {
		t.Errorf("transcriber called %d times, want 0", tb.transcriber.calls)
	}
	if got := tb.store.statuses["+14155551234"]; got != "call_completed" {
		t.Errorf("lead status = %q, want call_completed", got)
	}
	if tb.bridge.State() != StateClosed {
		t.Errorf("state = %v, want closed", tb.bridge.State())
	}
}

func TestStopWithMediaFinalizesAndTranscribes(t *testing.T) {
	tb := newTestBridge(t, Options{
		Capabilities: Capabilities{RecordAudio: true, TranscribeAfterCall: true},
	})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 20, false))
	tb.bridge.HandleTelephonyMessage(ctx, stopEvent("MS1"))

	if tb.recorder.calls != 1 {
		t.Fatalf("recorder called %d times, want 1", tb.recorder.calls)
	}
	if tb.transcriber.calls != 1 {
		t.Errorf("transcriber called %d times, want 1", tb.transcriber.calls)
	}
}

func TestEmailExtractionUpdatesLeadOnce(t *testing.T) {
	tb := newTestBridge(t, Options{NudgeDelay: time.Millisecond})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseTextDelta, "I've recorded your email as ", ""))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseTextDelta, "jane.doe@example.com. Thank you!", ""))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseContentDone, "", ""))

	tb.store.mu.Lock()
	defer tb.store.mu.Unlock()
	if len(tb.store.emails) != 1 {
		t.Fatalf("email updates = %d, want exactly 1", len(tb.store.emails))
	}
	if got := tb.store.emails["+14155551234"]; got != "jane.doe@example.com" {
		t.Errorf("stored email = %q, want jane.doe@example.com", got)
	}
}

func TestNoEmailNoUpdate(t *testing.T) {
	tb := newTestBridge(t, Options{NudgeDelay: time.Millisecond})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseTextDelta, "Could you spell that out for me?", ""))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseContentDone, "", ""))

	tb.store.mu.Lock()
	defer tb.store.mu.Unlock()
	if len(tb.store.emails) != 0 {
		t.Errorf("email updates = %d, want 0", len(tb.store.emails))
	}
	if len(tb.store.conversations) != 1 {
		t.Errorf("conversation entries = %d, want 1", len(tb.store.conversations))
	}
}

func TestSilenceTimerRearms(t *testing.T) {
	tb := newTestBridge(t, Options{SilenceTimeout: 80 * time.Millisecond})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 20, false))
	time.Sleep(40 * time.Millisecond)
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 40, false))

	// First arm would have fired by now if rearming did not replace it.
	time.Sleep(60 * time.Millisecond)
	if n := tb.ai.count(isTextAppend(silencePrompt)); n != 0 {
		t.Fatalf("silence prompts after rearm = %d, want 0", n)
	}

	// Second arm fires once.
	time.Sleep(60 * time.Millisecond)
	if n := tb.ai.count(isTextAppend(silencePrompt)); n != 1 {
		t.Errorf("silence prompts = %d, want exactly 1", n)
	}
}

func TestSilenceTimerCancelledOnStop(t *testing.T) {
	tb := newTestBridge(t, Options{SilenceTimeout: 50 * time.Millisecond})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 20, false))
	tb.bridge.HandleTelephonyMessage(ctx, stopEvent("MS1"))

	time.Sleep(80 * time.Millisecond)
	if n := tb.ai.count(isTextAppend(silencePrompt)); n != 0 {
		t.Errorf("silence prompts after stop = %d, want 0", n)
	}
}

func TestMarkOnEmptyQueue(t *testing.T) {
	tb := newTestBridge(t, Options{})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	raw, _ := json.Marshal(StreamEvent{Event: "mark", StreamSID: "MS1", Mark: &MarkPayload{Name: "m1"}})
	tb.bridge.HandleTelephonyMessage(ctx, raw)

	tb.bridge.mu.Lock()
	defer tb.bridge.mu.Unlock()
	if len(tb.bridge.session.PendingMarks) != 0 {
		t.Errorf("pending marks = %d, want 0", len(tb.bridge.session.PendingMarks))
	}
}

func TestAudioDeltaForwardsAndTracksMarks(t *testing.T) {
	tb := newTestBridge(t, Options{Capabilities: Capabilities{RecordAudio: true}})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 100, false))

	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseAudioDelta, payload, "item_1"))

	mediaFrames := tb.telephony.count(func(v interface{}) bool { _, ok := v.(MediaFrame); return ok })
	markFrames := tb.telephony.count(func(v interface{}) bool { _, ok := v.(MarkFrame); return ok })
	if mediaFrames != 1 || markFrames != 1 {
		t.Fatalf("forwarded frames media=%d mark=%d, want 1 and 1", mediaFrames, markFrames)
	}

	tb.bridge.mu.Lock()
	if len(tb.bridge.session.PendingMarks) != 1 {
		t.Errorf("pending marks = %d, want 1", len(tb.bridge.session.PendingMarks))
	}
	if tb.bridge.session.LastAssistantItemID != "item_1" {
		t.Errorf("last assistant item = %q, want item_1", tb.bridge.session.LastAssistantItemID)
	}
	if tb.bridge.session.ResponseStartTimestamp != 100 {
		t.Errorf("response start = %d, want 100", tb.bridge.session.ResponseStartTimestamp)
	}
	markName := tb.bridge.session.PendingMarks[0]
	tb.bridge.mu.Unlock()

	raw, _ := json.Marshal(StreamEvent{Event: "mark", StreamSID: "MS1", Mark: &MarkPayload{Name: markName}})
	tb.bridge.HandleTelephonyMessage(ctx, raw)

	tb.bridge.mu.Lock()
	defer tb.bridge.mu.Unlock()
	if len(tb.bridge.session.PendingMarks) != 0 {
		t.Errorf("pending marks after ack = %d, want 0", len(tb.bridge.session.PendingMarks))
	}
}

func TestMediaAfterStopIgnored(t *testing.T) {
	tb := newTestBridge(t, Options{Capabilities: Capabilities{RecordAudio: true}})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, stopEvent("MS1"))

	appendsBefore := tb.ai.count(func(v interface{}) bool { _, ok := v.(realtime.AudioAppend); return ok })
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 20, false))
	appendsAfter := tb.ai.count(func(v interface{}) bool { _, ok := v.(realtime.AudioAppend); return ok })

	if appendsAfter != appendsBefore {
		t.Errorf("audio forwarded after stop: %d new appends", appendsAfter-appendsBefore)
	}

	tb.bridge.mu.Lock()
	defer tb.bridge.mu.Unlock()
	if len(tb.bridge.session.IncomingAudio) != 0 {
		t.Errorf("incoming audio after stop = %d bytes, want 0", len(tb.bridge.session.IncomingAudio))
	}
}

func TestLastChunkSignalsSpeechStopped(t *testing.T) {
	tb := newTestBridge(t, Options{})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, mediaEvent("MS1", 20, true))

	stops := tb.ai.count(func(v interface{}) bool { _, ok := v.(realtime.SpeechStopped); return ok })
	if stops != 1 {
		t.Errorf("speech stopped signals = %d, want 1", stops)
	}

	tb.store.mu.Lock()
	defer tb.store.mu.Unlock()
	if len(tb.store.conversations) != 1 {
		t.Errorf("conversation entries = %d, want 1 caller placeholder", len(tb.store.conversations))
	}
}

func TestProviderTTSTurnComplete(t *testing.T) {
	tb := newTestBridge(t, Options{
		Capabilities: Capabilities{ProviderTTS: true},
		NudgeDelay:   time.Millisecond,
	})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseTextDelta, "Hello there!", ""))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseContentDone, "", ""))

	tts := tb.telephony.count(func(v interface{}) bool {
		f, ok := v.(TTSFrame)
		return ok && f.Text == "Hello there!"
	})
	if tts != 1 {
		t.Errorf("tts frames = %d, want 1", tts)
	}
}

func TestMalformedPayloadsDoNotTerminateSession(t *testing.T) {
	tb := newTestBridge(t, Options{})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, []byte("{not json"))
	tb.bridge.HandleAIMessage(ctx, []byte("also not json"))

	if tb.bridge.State() != StateStreaming {
		t.Errorf("state = %v, want streaming after malformed payloads", tb.bridge.State())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	tb := newTestBridge(t, Options{})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.Close()
	tb.bridge.Close()

	if tb.ai.closed != 1 {
		t.Errorf("AI connection closed %d times, want 1", tb.ai.closed)
	}
	if tb.telephony.closed != 1 {
		t.Errorf("telephony connection closed %d times, want 1", tb.telephony.closed)
	}
}

func TestCloseAfterStopStillClosesConnections(t *testing.T) {
	tb := newTestBridge(t, Options{})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	tb.bridge.HandleTelephonyMessage(ctx, stopEvent("MS1"))
	tb.bridge.Close()

	if tb.ai.closed != 1 {
		t.Errorf("AI connection closed %d times after stop then close, want 1", tb.ai.closed)
	}
	if tb.telephony.closed != 1 {
		t.Errorf("telephony connection closed %d times after stop then close, want 1", tb.telephony.closed)
	}

	tb.bridge.Close()
	if tb.ai.closed != 1 || tb.telephony.closed != 1 {
		t.Errorf("connections closed ai=%d telephony=%d after repeat close, want 1 and 1",
			tb.ai.closed, tb.telephony.closed)
	}
}

func TestProviderTTSSessionIsTextOnly(t *testing.T) {
	tb := newTestBridge(t, Options{
		Capabilities:       Capabilities{ProviderTTS: true},
		SessionUpdateDelay: time.Millisecond,
	})

	tb.bridge.InitAISession()

	textOnly := tb.ai.count(func(v interface{}) bool {
		su, ok := v.(realtime.SessionUpdate)
		return ok && len(su.Session.Modalities) == 1 && su.Session.Modalities[0] == "text"
	})
	if textOnly != 1 {
		t.Errorf("text-only session updates = %d, want 1", textOnly)
	}
}

func TestProviderTTSDropsAssistantAudio(t *testing.T) {
	tb := newTestBridge(t, Options{Capabilities: Capabilities{ProviderTTS: true}})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseAudioDelta, payload, "item_1"))

	mediaFrames := tb.telephony.count(func(v interface{}) bool { _, ok := v.(MediaFrame); return ok })
	if mediaFrames != 0 {
		t.Errorf("media frames relayed with provider voice active = %d, want 0", mediaFrames)
	}
}

func TestOversizedAudioDeltaIsRechunked(t *testing.T) {
	tb := newTestBridge(t, Options{})
	ctx := context.Background()

	tb.bridge.HandleTelephonyMessage(ctx, startEvent("MS1", "4155551234"))
	payload := base64.StdEncoding.EncodeToString(make([]byte, 400))
	tb.bridge.HandleAIMessage(ctx, aiEvent(realtime.TypeResponseAudioDelta, payload, "item_1"))

	mediaFrames := tb.telephony.count(func(v interface{}) bool { _, ok := v.(MediaFrame); return ok })
	markFrames := tb.telephony.count(func(v interface{}) bool { _, ok := v.(MarkFrame); return ok })
	if mediaFrames != 3 {
		t.Errorf("media frames = %d, want 3 for a 400 byte delta", mediaFrames)
	}
	if markFrames != 1 {
		t.Errorf("mark frames = %d, want 1", markFrames)
	}
}
