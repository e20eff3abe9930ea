// Package audiotest builds small audio fixtures for tests.
package audiotest

import (
	"os"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes a 16-bit PCM WAV file with the given per-channel
// samples. All channels must have equal length; samples are expected in
// [-1, 1] and are quantized to int16.
func WriteWAV(tb testing.TB, path string, sampleRate int, channels ...[]float32) {
	tb.Helper()
	if len(channels) == 0 {
		tb.Fatalf("audiotest: no channels")
	}
	frames := len(channels[0])
	for i, ch := range channels {
		if len(ch) != frames {
			tb.Fatalf("audiotest: channel %d has %d samples, want %d", i, len(ch), frames)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("audiotest: create wav: %v", err)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, len(channels), 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: len(channels), SampleRate: sampleRate},
		Data:           make([]int, frames*len(channels)),
		SourceBitDepth: 16,
	}
	for i := 0; i < frames; i++ {
		for c, ch := range channels {
			buf.Data[i*len(channels)+c] = int(quantize(ch[i]))
		}
	}
	if err := enc.Write(buf); err != nil {
		tb.Fatalf("audiotest: encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("audiotest: close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		tb.Fatalf("audiotest: close wav: %v", err)
	}
}

// Ramp returns n samples that survive a 16-bit round trip exactly:
// each value is an integer multiple of 1/32768.
func Ramp(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(int16(i%4096-2048)) / 32768
	}
	return samples
}

func quantize(v float32) int16 {
	scaled := v * 32768
	if scaled > 32767 {
		return 32767
	}
	if scaled < -32768 {
		return -32768
	}
	return int16(scaled)
}
