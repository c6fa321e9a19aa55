package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// ErrReference is wrapped by every error [LoadFile] returns, so callers can
// tell a missing or undecodable reference clip apart from other setup
// failures.
var ErrReference = errors.New("audio: reference clip unavailable")

// WAV format tags.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// LoadFile decodes the WAV or MP3 file at path into mono float32 samples at
// sampleRate. The container is chosen by extension, falling back to the RIFF
// magic for unknown extensions.
func LoadFile(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrReference, path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var (
		samples []float32
		format  Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".mp3":
		samples, format, err = DecodeMP3(br)
	case ext == ".wav" || ext == ".wave" || isRIFF(br):
		samples, format, err = DecodeWAV(br)
	default:
		err = fmt.Errorf("unsupported file type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrReference, path, err)
	}

	mono := Downmix(samples, format.Channels)
	return Resample(mono, format.SampleRate, sampleRate), nil
}

func isRIFF(br *bufio.Reader) bool {
	magic, err := br.Peek(4)
	return err == nil && string(magic) == "RIFF"
}

// DecodeMP3 decodes an MP3 stream. The decoder always produces 16-bit
// interleaved stereo.
func DecodeMP3(r io.Reader) ([]float32, Format, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, Format{}, fmt.Errorf("mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil && len(pcm) == 0 {
		return nil, Format{}, fmt.Errorf("mp3: read pcm: %w", err)
	}
	return PCM16ToFloat32(pcm), Format{SampleRate: d.SampleRate(), Channels: 2}, nil
}

// wavFmt is the payload of a WAV "fmt " chunk.
type wavFmt struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// DecodeWAV decodes a RIFF/WAVE stream holding 16, 24 or 32-bit integer PCM
// or 32-bit float samples.
func DecodeWAV(r io.Reader) ([]float32, Format, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, Format{}, fmt.Errorf("wav: read header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("wav: not a RIFF/WAVE stream")
	}

	var (
		fmtChunk *wavFmt
		data     []byte
	)
	for data == nil {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, Format{}, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(ch[0:4])
		size := binary.LittleEndian.Uint32(ch[4:8])
		body := make([]byte, size)
		if n, err := io.ReadFull(r, body); err != nil {
			// Truncated data chunks are common in recordings; keep what arrived.
			if id != "data" || !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, Format{}, fmt.Errorf("wav: read %q chunk: %w", id, err)
			}
			body = body[:n]
		}
		if size%2 == 1 {
			_, _ = io.CopyN(io.Discard, r, 1)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("wav: fmt chunk too short (%d bytes)", size)
			}
			var wf wavFmt
			if err := binary.Read(bytes.NewReader(body[:16]), binary.LittleEndian, &wf); err != nil {
				return nil, Format{}, fmt.Errorf("wav: parse fmt chunk: %w", err)
			}
			if wf.AudioFormat == wavFormatExtensible && size >= 26 {
				wf.AudioFormat = binary.LittleEndian.Uint16(body[24:26])
			}
			fmtChunk = &wf
		case "data":
			if fmtChunk == nil {
				return nil, Format{}, errors.New("wav: data chunk before fmt chunk")
			}
			data = body
		}
	}

	format := Format{SampleRate: int(fmtChunk.SampleRate), Channels: int(fmtChunk.Channels)}
	if format.Channels < 1 || format.SampleRate < 1 {
		return nil, Format{}, fmt.Errorf("wav: invalid format %s", format)
	}

	switch {
	case fmtChunk.AudioFormat == wavFormatPCM && fmtChunk.BitsPerSample == 16:
		return PCM16ToFloat32(data), format, nil
	case fmtChunk.AudioFormat == wavFormatPCM && fmtChunk.BitsPerSample == 24:
		return PCM24ToFloat32(data), format, nil
	case fmtChunk.AudioFormat == wavFormatPCM && fmtChunk.BitsPerSample == 32:
		return PCM32ToFloat32(data), format, nil
	case fmtChunk.AudioFormat == wavFormatFloat && fmtChunk.BitsPerSample == 32:
		return Float32LEToFloat32(data), format, nil
	}
	return nil, Format{}, fmt.Errorf("wav: unsupported encoding (format %d, %d bits)",
		fmtChunk.AudioFormat, fmtChunk.BitsPerSample)
}
