package transcriber

import (
	"encoding/binary"
	"testing"

	"voxd-server/internal/audio"
)

func TestEncodeWAV_HeaderFields(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1}
	wav := encodeWAV(samples, 16000)

	if string(wav[0:4]) != "RIFF" {
		t.Fatalf("expected RIFF header, got %q", wav[0:4])
	}
	if string(wav[8:12]) != "WAVE" {
		t.Fatalf("expected WAVE tag, got %q", wav[8:12])
	}
	if string(wav[12:16]) != "fmt " {
		t.Fatalf("expected fmt chunk, got %q", wav[12:16])
	}

	sampleRate := binary.LittleEndian.Uint32(wav[24:28])
	if sampleRate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", sampleRate)
	}

	dataTag := wav[36:40]
	if string(dataTag) != "data" {
		t.Fatalf("expected data chunk, got %q", dataTag)
	}
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if int(dataLen) != len(samples)*2 {
		t.Fatalf("expected data length %d, got %d", len(samples)*2, dataLen)
	}
}

func TestEncodeWAV_TotalLengthMatchesHeaderPlusData(t *testing.T) {
	samples := make([]float32, 100)
	wav := encodeWAV(samples, 16000)
	if len(wav) != 44+200 {
		t.Fatalf("expected 44-byte header + 200 bytes of PCM, got %d", len(wav))
	}
}

func TestEncodeWAV_RoundTripsPCMPayload(t *testing.T) {
	samples := []float32{0.25, -0.25, 0, 0.9}
	wav := encodeWAV(samples, 16000)
	decoded := audio.DecodePCM16LE(wav[44:])

	if len(decoded) != len(samples) {
		t.Fatalf("expected %d decoded samples, got %d", len(samples), len(decoded))
	}
	for i, s := range samples {
		if diff := float64(decoded[i] - s); diff > 0.01 || diff < -0.01 {
			t.Errorf("sample %d: got %v want ~%v", i, decoded[i], s)
		}
	}
}
