package recorder

import (
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/dialworks/leadagent/pkg/storage"
)

func TestFinalizeBothTracks(t *testing.T) {
	r := New(storage.NewLocalDriver(t.TempDir()), zap.NewNop())

	inbound := make([]byte, 160)
	outbound := make([]byte, 320)

	rec, err := r.Finalize("MS123", inbound, outbound)
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}

	for _, path := range []string{rec.InboundPath, rec.OutboundPath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("recording missing at %s: %v", path, err)
		}
		// 44-byte WAV header plus 2 bytes PCM per u-law sample
		if info.Size() < 44 {
			t.Errorf("recording at %s too small: %d bytes", path, info.Size())
		}
	}
}

func TestFinalizeEmptyTrackSkipped(t *testing.T) {
	r := New(storage.NewLocalDriver(t.TempDir()), zap.NewNop())

	rec, err := r.Finalize("MS123", nil, make([]byte, 160))
	if err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	if rec.InboundPath != "" {
		t.Errorf("inbound path = %q, want empty for silent track", rec.InboundPath)
	}
	if rec.OutboundPath == "" {
		t.Error("outbound path empty, want file path")
	}
}

func TestFinalizeRequiresStreamID(t *testing.T) {
	r := New(storage.NewLocalDriver(t.TempDir()), zap.NewNop())

	if _, err := r.Finalize("", []byte{1}, nil); err == nil {
		t.Error("Finalize with empty stream id should fail")
	}
}
