package block

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRecordRoundTripPending(t *testing.T) {
	store := newMemStore()
	b := New("takes/session.wav", 1, 4096, 70000, Options{
		Decode: sliceDecoder(rampSamples(80000)),
		Store:  store,
	})
	b.SetClipOffset(300)
	b.SetStart(40)

	rec := b.Record()
	if rec.Kind != KindPending {
		t.Fatalf("kind = %q, want pending", rec.Kind)
	}
	if rec.SummaryFile != "" || rec.Min != 0 || rec.Max != 0 || rec.RMS != 0 {
		t.Fatalf("pending record carries summary fields: %+v", rec)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	loaded, err := FromRecord(decoded, Options{Store: store})
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if loaded.IsAvailable() {
		t.Fatalf("pending record reloaded as available")
	}
	if loaded.AliasedPath() != "takes/session.wav" || loaded.Channel() != 1 {
		t.Fatalf("alias identity lost: %q ch %d", loaded.AliasedPath(), loaded.Channel())
	}
	start, n := loaded.AliasRange()
	if start != 4096 || n != 70000 {
		t.Fatalf("alias range lost: (%d, %d)", start, n)
	}
	if loaded.ClipOffset() != 300 || loaded.Start() != 40 {
		t.Fatalf("display offsets lost")
	}
}

func TestRecordRoundTripComplete(t *testing.T) {
	store := newMemStore()
	b := newTestBlock(rampSamples(70000), store)
	if err := b.WriteSummary(context.Background()); err != nil {
		t.Fatalf("write summary: %v", err)
	}

	rec := b.Record()
	if rec.Kind != KindComplete {
		t.Fatalf("kind = %q, want complete", rec.Kind)
	}
	if rec.SummaryFile != "blocks/a1.ods" {
		t.Fatalf("summary file = %q", rec.SummaryFile)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Min != rec.Min || decoded.Max != rec.Max || decoded.RMS != rec.RMS {
		t.Fatalf("stats not bit-for-bit: %+v vs %+v", decoded, rec)
	}

	loaded, err := FromRecord(decoded, Options{Store: store})
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if !loaded.IsAvailable() {
		t.Fatalf("complete record reloaded as pending")
	}

	// Full tiers load lazily from the persisted summary file.
	lo1, hi1, rms1, err := b.MinMax(256, 4096)
	if err != nil {
		t.Fatalf("source MinMax: %v", err)
	}
	lo2, hi2, rms2, err := loaded.MinMax(256, 4096)
	if err != nil {
		t.Fatalf("reloaded MinMax: %v", err)
	}
	if lo1 != lo2 || hi1 != hi2 || rms1 != rms2 {
		t.Fatalf("reloaded block answers differ")
	}
}

func TestRecordMidComputeSerializesAsPending(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	samples := rampSamples(1024)
	b := New("source.wav", 0, 0, int64(len(samples)), Options{
		Decode: func(_ string, _ int, start, n int64) ([]float32, error) {
			close(started)
			<-release
			return samples[start : start+n], nil
		},
		Store: newMemStore(),
		Alloc: fixedAlloc{path: "blocks/mid.ods"},
	})

	done := make(chan error, 1)
	go func() { done <- b.WriteSummary(context.Background()) }()
	<-started

	rec := b.Record()
	if rec.Kind != KindPending {
		t.Fatalf("mid-compute record kind = %q, want pending", rec.Kind)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("write summary: %v", err)
	}
}

func TestFromRecordRejectsMalformed(t *testing.T) {
	cases := []Record{
		{Kind: "mystery", AliasedPath: "a.wav", AliasLen: 10},
		{Kind: KindPending, AliasLen: 10},
		{Kind: KindComplete, AliasedPath: "a.wav", AliasLen: 10},
		{Kind: KindPending, AliasedPath: "a.wav", AliasLen: -1},
	}
	for i, rec := range cases {
		if _, err := FromRecord(rec, Options{}); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, rec)
		}
	}
}
