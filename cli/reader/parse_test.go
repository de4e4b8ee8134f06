package reader

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pithecene-io/teeline/ipc"
)

func TestParseSegment(t *testing.T) {
	body := ipc.Concat([][]byte{
		ipc.EncodeFrame([]byte("one")),
		ipc.EncodeFrame(nil),
		ipc.EncodeFrame([]byte("three")),
	})

	got := ParseSegment("seg.ssef", body)
	want := &SegmentView{
		Path:  "seg.ssef",
		Bytes: len(body),
		Frames: []EntryView{
			{Index: 0, Len: 3, Preview: "one"},
			{Index: 1, Len: 0, Preview: ""},
			{Index: 2, Len: 5, Preview: "three"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("segment mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSegment_TruncatedTail(t *testing.T) {
	body := append(ipc.EncodeFrame([]byte("ok")), 0x10, 0x00, 0x00, 0x00, 'p')

	got := ParseSegment("", body)
	if len(got.Frames) != 1 {
		t.Fatalf("expected 1 complete frame, got %d", len(got.Frames))
	}
	if got.Trailing != 5 {
		t.Errorf("Trailing = %d, want 5", got.Trailing)
	}
}

func TestParseSegment_Empty(t *testing.T) {
	got := ParseSegment("empty", nil)
	if len(got.Frames) != 0 || got.Trailing != 0 {
		t.Errorf("unexpected view: %+v", got)
	}
}

func TestPayloads(t *testing.T) {
	body := ipc.Concat([][]byte{ipc.EncodeFrame([]byte{0x00, 0x01}), ipc.EncodeFrame([]byte("b"))})
	want := [][]byte{{0x00, 0x01}, []byte("b")}
	if diff := cmp.Diff(want, Payloads(body)); diff != "" {
		t.Errorf("payloads (-want +got):\n%s", diff)
	}
}
