package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/ringwatch/pkg/audio"
)

// encodeWAV builds a RIFF/WAVE file with an extra chunk before "data" to
// exercise chunk skipping.
func encodeWAV(t *testing.T, format uint16, bits, channels, rate int, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write: %v", err)
		}
	}
	list := []byte("odd") // odd-sized chunk forces a pad byte

	buf.WriteString("RIFF")
	w(uint32(4 + 8 + 16 + 8 + len(list) + 1 + 8 + len(payload)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	w(uint32(16))
	w(format)
	w(uint16(channels))
	w(uint32(rate))
	w(uint32(rate * channels * bits / 8))
	w(uint16(channels * bits / 8))
	w(uint16(bits))

	buf.WriteString("LIST")
	w(uint32(len(list)))
	buf.Write(list)
	buf.WriteByte(0)

	buf.WriteString("data")
	w(uint32(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDecodeWAV_PCM16Stereo(t *testing.T) {
	t.Parallel()
	data := encodeWAV(t, 1, 16, 2, 22050, pcm16(16384, -16384, 8192, 8192))

	samples, format, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if format != (audio.Format{SampleRate: 22050, Channels: 2}) {
		t.Errorf("format = %v", format)
	}
	want := []float32{0.5, -0.5, 0.25, 0.25}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
}

func TestDecodeWAV_Float32(t *testing.T) {
	t.Parallel()
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], math.Float32bits(0.125))
	binary.LittleEndian.PutUint32(payload[4:], math.Float32bits(-1))

	samples, _, err := audio.DecodeWAV(bytes.NewReader(encodeWAV(t, 3, 32, 1, 44100, payload)))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if samples[0] != 0.125 || samples[1] != -1 {
		t.Errorf("samples = %v", samples)
	}
}

func TestDecodeWAV_TruncatedData(t *testing.T) {
	t.Parallel()
	data := encodeWAV(t, 1, 16, 1, 8000, pcm16(1, 2, 3, 4))
	data = data[:len(data)-3] // cut into the last two samples

	samples, _, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("len = %d, want 2", len(samples))
	}
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "not riff", data: []byte("OggS0000WAVEfmt ")},
		{name: "unsupported bits", data: encodeWAV(t, 1, 8, 1, 8000, []byte{1, 2})},
		{name: "zero channels", data: encodeWAV(t, 1, 16, 0, 8000, pcm16(1))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := audio.DecodeWAV(bytes.NewReader(tc.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFile_DownmixesAndResamples(t *testing.T) {
	t.Parallel()
	frames := make([]int16, 0, 2*8000)
	for i := range 8000 {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/8000))
		frames = append(frames, v, v)
	}
	path := filepath.Join(t.TempDir(), "ring.wav")
	if err := os.WriteFile(path, encodeWAV(t, 1, 16, 2, 8000, pcm16(frames...)), 0o644); err != nil {
		t.Fatal(err)
	}

	samples, err := audio.LoadFile(path, 16000)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(samples) != 16000 {
		t.Errorf("len = %d, want 16000 (one second at 16 kHz)", len(samples))
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	garbage := filepath.Join(dir, "ring.wav")
	if err := os.WriteFile(garbage, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	unknown := filepath.Join(dir, "ring.ogg")
	if err := os.WriteFile(unknown, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.wav"), garbage, unknown} {
		_, err := audio.LoadFile(path, 44100)
		if !errors.Is(err, audio.ErrReference) {
			t.Errorf("LoadFile(%s) err = %v, want ErrReference", filepath.Base(path), err)
		}
	}
}
