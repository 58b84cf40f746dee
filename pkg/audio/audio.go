package audio

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/zaf/g711"
)

// Telephony media streams carry G.711 u-law, 8 kHz, mono.
const (
	SampleRate    = 8000
	bitsPerSample = 16
	numChannels   = 1
)

// DecodeULaw converts G.711 u-law samples to 16-bit signed little-endian PCM.
func DecodeULaw(ulaw []byte) []byte {
	if len(ulaw) == 0 {
		return nil
	}
	return g711.DecodeUlaw(ulaw)
}

// EncodeBase64 encodes an audio chunk for a JSON media payload.
func EncodeBase64(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}

// DecodeBase64 decodes a base64 media payload.
func DecodeBase64(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

// EncodeWAV wraps raw 16-bit mono PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	dataSize := len(pcm)
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	return append(header, pcm...)
}

// ChunkBytes splits audio into fixed-size chunks for streaming.
func ChunkBytes(data []byte, chunkSize int) [][]byte {
	if chunkSize <= 0 {
		chunkSize = 160 // 20ms of u-law at 8kHz
	}

	var chunks [][]byte
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks
}
