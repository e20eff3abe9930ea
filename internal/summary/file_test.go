package summary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block.ods")
	rec := Compute(sine(70000))

	if err := WriteFile(path, rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if loaded.Len != rec.Len || loaded.Min != rec.Min || loaded.Max != rec.Max || loaded.RMS != rec.RMS {
		t.Fatalf("block stats differ: %+v vs %+v", loaded, rec)
	}
	if len(loaded.Fine) != len(rec.Fine) || len(loaded.Coarse) != len(rec.Coarse) {
		t.Fatalf("tier shapes differ")
	}
	for i := range rec.Fine {
		if loaded.Fine[i] != rec.Fine[i] {
			t.Fatalf("fine frame %d differs: %+v vs %+v", i, loaded.Fine[i], rec.Fine[i])
		}
	}
	for i := range rec.Coarse {
		if loaded.Coarse[i] != rec.Coarse[i] {
			t.Fatalf("coarse frame %d differs", i)
		}
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.ods")
	if err := WriteFile(path, Compute(sine(512))); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.ods")
	if err := os.WriteFile(path, []byte("RIFFxxxxxxxxxxxxxxxxxxxxxxxxxxxx"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("err = %v, want ErrBadMagic", err)
	}
}

func TestReadRejectsTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "block.ods")
	if err := WriteFile(path, Compute(sine(4096))); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	short := filepath.Join(dir, "short.ods")
	if err := os.WriteFile(short, data[:len(data)-7], 0o644); err != nil {
		t.Fatalf("write truncated: %v", err)
	}
	if _, err := ReadFile(short); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

// A corrupt header can claim frame counts that agree with its sample
// count while the file holds almost nothing. The reader must refuse
// before allocating the multi-gigabyte slices the header asks for.
func TestReadRejectsHeaderLargerThanFile(t *testing.T) {
	const samples = int64(1) << 38

	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	for _, v := range []any{
		currentVersion,
		uint16(0),
		uint64(samples),
		uint32(frameCount(samples, FineFrameSamples)),
		uint32(frameCount(samples, CoarseFrameSamples)),
		float32(0), float32(0), float32(0),
	} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("build header: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "huge.ods")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
