package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

type vorbisSource struct {
	file   *os.File
	reader *oggvorbis.Reader
}

func openVorbis(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: open ogg: %w", err)
	}
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return &vorbisSource{file: f, reader: reader}, nil
}

func (s *vorbisSource) SampleRate() int { return s.reader.SampleRate() }
func (s *vorbisSource) Channels() int   { return s.reader.Channels() }
func (s *vorbisSource) Close() error    { return s.file.Close() }

func (s *vorbisSource) ReadSamples(dst []float32) (int, error) {
	n, err := s.reader.Read(dst)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("decode: vorbis read: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, err
}
