package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PCM16ToFloat32 converts little-endian signed 16-bit PCM to float32 samples
// in [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// PCM24ToFloat32 converts little-endian signed 24-bit PCM to float32 samples.
func PCM24ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/3)
	for i := range out {
		b := pcm[i*3:]
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		out[i] = float32(v) / 8388608
	}
	return out
}

// PCM32ToFloat32 converts little-endian signed 32-bit PCM to float32 samples.
func PCM32ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/4)
	for i := range out {
		v := int32(binary.LittleEndian.Uint32(pcm[i*4:]))
		out[i] = float32(float64(v) / 2147483648)
	}
	return out
}

// Float32LEToFloat32 reinterprets little-endian IEEE-754 bytes as float32
// samples, the layout capture devices deliver for f32 formats.
func Float32LEToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. Input with a
// single channel is returned unchanged.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// String returns a human-readable form such as "44100Hz mono".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
