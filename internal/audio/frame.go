// Package audio defines the fixed audio contract of the /ws/audio
// protocol: mono PCM float32 input framed in 20ms chunks at 16kHz, and
// PCM16LE output at 22050Hz for synthesized speech.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// InputSampleRateHz is the sample rate the client streams microphone
	// audio at.
	InputSampleRateHz = 16000
	// FrameMillis is the fixed frame duration used by the segmenter and VAD.
	FrameMillis = 20
	// FrameSamples is the number of samples in one 20ms frame at 16kHz.
	FrameSamples = InputSampleRateHz * FrameMillis / 1000 // 320

	// OutputSampleRateHz is the sample rate synthesized speech is sent at.
	OutputSampleRateHz = 22050
)

// Frame is one 20ms window of mono PCM float32 samples, tagged with the
// sequence number the client attached to the underlying byte stream.
type Frame struct {
	Samples  [FrameSamples]float32
	Sequence uint64
}

// DecodeFloat32LE reads little-endian float32 PCM samples from raw bytes.
func DecodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// EncodeFloat32LE writes float32 PCM samples as little-endian bytes.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(s))
	}
	return out
}

// EncodePCM16LE converts float32 samples in [-1, 1] to signed 16-bit
// little-endian PCM, clipping values outside that range.
func EncodePCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * math.MaxInt16)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
	}
	return out
}

// DecodePCM16LE converts signed 16-bit little-endian PCM to float32
// samples in [-1, 1].
func DecodePCM16LE(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		out[i] = float32(v) / math.MaxInt16
	}
	return out
}
