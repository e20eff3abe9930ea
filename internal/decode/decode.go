package decode

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Source delivers interleaved float32 samples from one audio file.
type Source interface {
	SampleRate() int
	Channels() int
	// ReadSamples fills dst with up to len(dst) interleaved samples and
	// returns how many were written. io.EOF signals exhaustion.
	ReadSamples(dst []float32) (int, error)
	Close() error
}

// Open dispatches on the file extension and returns a decoder for it.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return openWav(path)
	case ".mp3":
		return openMP3(path)
	case ".ogg", ".oga":
		return openVorbis(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Info describes a decodable audio file.
type Info struct {
	SampleRate int
	Channels   int
	// Frames is the per-channel sample count.
	Frames int64
}

// Probe opens path and determines its shape. Formats without a reliable
// length header are counted by decoding to the end.
func Probe(path string) (Info, error) {
	src, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer src.Close()

	info := Info{
		SampleRate: src.SampleRate(),
		Channels:   src.Channels(),
	}

	var total int64
	buf := make([]float32, 8192*info.Channels)
	for {
		n, err := src.ReadSamples(buf)
		total += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Info{}, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
		}
		if n == 0 {
			break
		}
	}
	info.Frames = total / int64(info.Channels)
	return info, nil
}

// ReadRange decodes n samples of one channel starting at sample index
// start. The window must lie entirely inside the source; a short source
// yields ErrRangeOutOfBounds.
func ReadRange(path string, channel int, start, n int64) ([]float32, error) {
	src, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	channels := src.Channels()
	if channel < 0 || channel >= channels {
		return nil, fmt.Errorf("%w: channel %d of %d", ErrBadChannel, channel, channels)
	}

	if err := skipFrames(src, channels, start); err != nil {
		return nil, err
	}

	out := make([]float32, 0, n)
	buf := make([]float32, 4096*channels)
	for int64(len(out)) < n {
		want := (n - int64(len(out))) * int64(channels)
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		// Keep reads frame aligned so channel extraction stays in phase.
		want -= want % int64(channels)
		if want == 0 {
			want = int64(channels)
		}

		read, err := readFullFrames(src, buf[:want], channels)
		for i := channel; i < read; i += channels {
			out = append(out, buf[i])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: wanted %d samples, source ended after %d", ErrRangeOutOfBounds, n, len(out))
			}
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
	}
	return out, nil
}

func skipFrames(src Source, channels int, frames int64) error {
	remaining := frames * int64(channels)
	buf := make([]float32, 4096*channels)
	for remaining > 0 {
		want := remaining
		if want > int64(len(buf)) {
			want = int64(len(buf))
		}
		read, err := readFullFrames(src, buf[:want], channels)
		remaining -= int64(read)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: start past end of source", ErrRangeOutOfBounds)
			}
			return err
		}
	}
	return nil
}

// readFullFrames reads until dst is full or the source ends, returning a
// count that is always a multiple of channels.
func readFullFrames(src Source, dst []float32, channels int) (int, error) {
	total := 0
	for total < len(dst) {
		n, err := src.ReadSamples(dst[total:])
		total += n
		if err != nil {
			return total - total%channels, err
		}
		if n == 0 {
			return total - total%channels, io.EOF
		}
	}
	return total, nil
}
