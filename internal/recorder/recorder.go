// Package recorder turns a call's raw u-law buffers into playable WAV files.
package recorder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dialworks/leadagent/pkg/audio"
	"github.com/dialworks/leadagent/pkg/storage"
)

// Recording holds the finalized file paths for one stream. A path is empty
// when that track carried no audio.
type Recording struct {
	InboundPath  string
	OutboundPath string
}

type Recorder struct {
	store  storage.Driver
	logger *zap.Logger
}

func New(store storage.Driver, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Finalize transcodes both tracks and persists them under the stream id.
func (r *Recorder) Finalize(streamID string, inbound, outbound []byte) (Recording, error) {
	if streamID == "" {
		return Recording{}, fmt.Errorf("stream id is required")
	}

	var rec Recording

	if len(inbound) > 0 {
		path, err := r.saveTrack(streamID+"_inbound.wav", inbound)
		if err != nil {
			return rec, fmt.Errorf("failed to finalize inbound track: %w", err)
		}
		rec.InboundPath = path
	}

	if len(outbound) > 0 {
		path, err := r.saveTrack(streamID+"_outbound.wav", outbound)
		if err != nil {
			return rec, fmt.Errorf("failed to finalize outbound track: %w", err)
		}
		rec.OutboundPath = path
	}

	r.logger.Info("Recording finalized",
		zap.String("stream_id", streamID),
		zap.Int("inbound_bytes", len(inbound)),
		zap.Int("outbound_bytes", len(outbound)),
	)

	return rec, nil
}

func (r *Recorder) saveTrack(name string, ulaw []byte) (string, error) {
	pcm := audio.DecodeULaw(ulaw)
	wav := audio.EncodeWAV(pcm, audio.SampleRate)
	return r.store.Save(name, wav)
}

// Path returns where a finalized track would live, without checking existence.
func (r *Recorder) Path(streamID, track string) string {
	return r.store.Path(streamID + "_" + track + ".wav")
}
