package summary

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// On-disk layout, little endian:
//
//	magic "ODS1"      4 bytes
//	version           uint16
//	reserved          uint16
//	sample count      uint64
//	fine frame count  uint32
//	coarse count      uint32
//	block min/max/rms 3 × float32
//	fine frames       fineCount × 3 × float32
//	coarse frames     coarseCount × 3 × float32
const (
	fileMagic      = "ODS1"
	currentVersion = uint16(1)
	headerSize     = 4 + 2 + 2 + 8 + 4 + 4 + 12
	frameBytes     = 12
)

var (
	ErrBadMagic           = errors.New("summary: bad magic")
	ErrUnsupportedVersion = errors.New("summary: unsupported version")
	ErrTruncated          = errors.New("summary: truncated file")
)

// WriteFile persists the record to path via a temp file renamed into
// place, so a crashed or failed write never leaves a partial summary
// at the destination.
func WriteFile(path string, rec *Record) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("summary: create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := encode(w, rec); err == nil {
		err = w.Flush()
	} else {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: encode: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("summary: commit rename: %w", err)
	}
	return nil
}

// ReadFile loads a persisted record, verifying framing and length.
func ReadFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("summary: open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("summary: stat: %w", err)
	}
	rec, err := decode(bufio.NewReader(f), info.Size())
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func encode(w io.Writer, rec *Record) error {
	if _, err := w.Write([]byte(fileMagic)); err != nil {
		return err
	}
	header := []any{
		currentVersion,
		uint16(0),
		uint64(rec.Len),
		uint32(len(rec.Fine)),
		uint32(len(rec.Coarse)),
		rec.Min,
		rec.Max,
		rec.RMS,
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, rec.Fine); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, rec.Coarse)
}

func decode(r io.Reader, size int64) (*Record, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, wrapTruncated(err)
	}
	if string(magic) != fileMagic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, magic)
	}

	var (
		version     uint16
		reserved    uint16
		sampleCount uint64
		fineCount   uint32
		coarseCount uint32
	)
	for _, dst := range []any{&version, &reserved, &sampleCount, &fineCount, &coarseCount} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, wrapTruncated(err)
		}
	}
	if version != currentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if expectFine := frameCount(int64(sampleCount), FineFrameSamples); int64(fineCount) != expectFine {
		return nil, fmt.Errorf("summary: fine frame count %d does not match %d samples", fineCount, sampleCount)
	}
	if expectCoarse := frameCount(int64(sampleCount), CoarseFrameSamples); int64(coarseCount) != expectCoarse {
		return nil, fmt.Errorf("summary: coarse frame count %d does not match %d samples", coarseCount, sampleCount)
	}
	// Bound the claimed payload against the real file size before
	// allocating, so a corrupt header cannot demand gigabytes.
	if need := int64(headerSize) + (int64(fineCount)+int64(coarseCount))*frameBytes; need > size {
		return nil, fmt.Errorf("%w: header claims %d bytes, file has %d", ErrTruncated, need, size)
	}

	rec := &Record{
		Len:    int64(sampleCount),
		Fine:   make([]Frame, fineCount),
		Coarse: make([]Frame, coarseCount),
	}
	for _, dst := range []any{&rec.Min, &rec.Max, &rec.RMS} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, wrapTruncated(err)
		}
	}
	if err := binary.Read(r, binary.LittleEndian, rec.Fine); err != nil {
		return nil, wrapTruncated(err)
	}
	if err := binary.Read(r, binary.LittleEndian, rec.Coarse); err != nil {
		return nil, wrapTruncated(err)
	}
	return rec, nil
}

func wrapTruncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("summary: read: %w", err)
}
