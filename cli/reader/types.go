// Package reader provides the read side of the teeline CLI.
//
// Ring and stats views come from a running aggregator's debug RPC; segment
// views come from stored ingest bodies. Commands render these views and
// never touch pipeline state.
package reader

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/pithecene-io/teeline/ingest"
	"github.com/pithecene-io/teeline/types"
)

// EntryView is one ring entry or stored frame.
type EntryView struct {
	Index   int    `json:"index" yaml:"index"`
	Len     int    `json:"len" yaml:"len"`
	Preview string `json:"preview" yaml:"preview"`
}

// RingView is one source's ring, oldest entry first.
type RingView struct {
	Source  string      `json:"source" yaml:"source"`
	Entries []EntryView `json:"entries" yaml:"entries"`
}

// RingSummary is one row of the rings overview.
type RingSummary struct {
	Source      string `json:"source" yaml:"source"`
	Entries     int    `json:"entries" yaml:"entries"`
	Bytes       int    `json:"bytes" yaml:"bytes"`
	LastPreview string `json:"last_preview" yaml:"last_preview"`
}

// RingsView is every ring held by the aggregator, sorted by source.
type RingsView struct {
	Rings []RingView `json:"rings" yaml:"rings"`
}

// StatsView is the aggregator's batch counters.
type StatsView struct {
	Sources          []string         `json:"sources" yaml:"sources"`
	FramesEnqueued   int64            `json:"frames_enqueued" yaml:"frames_enqueued"`
	BytesEnqueued    int64            `json:"bytes_enqueued" yaml:"bytes_enqueued"`
	PendingFrames    int64            `json:"pending_frames" yaml:"pending_frames"`
	PendingBytes     int64            `json:"pending_bytes" yaml:"pending_bytes"`
	FlushCount       int64            `json:"flush_count" yaml:"flush_count"`
	FlushByTrigger   map[string]int64 `json:"flush_by_trigger" yaml:"flush_by_trigger"`
	Delivered        int64            `json:"delivered" yaml:"delivered"`
	DeliveryFailures int64            `json:"delivery_failures" yaml:"delivery_failures"`
}

// SegmentView is one stored ingest body decoded into frames.
type SegmentView struct {
	Path   string      `json:"path" yaml:"path"`
	Bytes  int         `json:"bytes" yaml:"bytes"`
	Frames []EntryView `json:"frames" yaml:"frames"`
	// Trailing is the number of bytes after the last complete frame.
	Trailing int `json:"trailing" yaml:"trailing"`
}

func entryViews(payloads [][]byte) []EntryView {
	out := make([]EntryView, len(payloads))
	for i, p := range payloads {
		out[i] = EntryView{Index: i, Len: len(p), Preview: ingest.Preview(p, ingest.PreviewLen)}
	}
	return out
}

// NewRingView builds the view of one ring.
func NewRingView(source types.SourceID, entries []types.RingEntry) *RingView {
	payloads := make([][]byte, len(entries))
	for i, e := range entries {
		payloads[i] = e.Bytes
	}
	return &RingView{Source: string(source), Entries: entryViews(payloads)}
}

// NewRingsView builds the view of every ring, sorted by source.
func NewRingsView(all map[types.SourceID][]types.RingEntry) *RingsView {
	sources := make([]types.SourceID, 0, len(all))
	for s := range all {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	v := &RingsView{Rings: make([]RingView, 0, len(sources))}
	for _, s := range sources {
		v.Rings = append(v.Rings, *NewRingView(s, all[s]))
	}
	return v
}

// Summaries returns one overview row per ring.
func (v *RingsView) Summaries() []RingSummary {
	out := make([]RingSummary, 0, len(v.Rings))
	for _, r := range v.Rings {
		s := RingSummary{Source: r.Source, Entries: len(r.Entries)}
		for _, e := range r.Entries {
			s.Bytes += e.Len
		}
		if n := len(r.Entries); n > 0 {
			s.LastPreview = r.Entries[n-1].Preview
		}
		out = append(out, s)
	}
	return out
}

// TableRows implements render.Tabular.
func (v *RingView) TableRows() ([]string, [][]string) {
	return entryRows(v.Entries)
}

// TableRows implements render.Tabular.
func (v *RingsView) TableRows() ([]string, [][]string) {
	rows := make([][]string, 0, len(v.Rings))
	for _, s := range v.Summaries() {
		rows = append(rows, []string{s.Source, strconv.Itoa(s.Entries), strconv.Itoa(s.Bytes), s.LastPreview})
	}
	return []string{"source", "entries", "bytes", "last_preview"}, rows
}

// TableRows implements render.Tabular.
func (v *SegmentView) TableRows() ([]string, [][]string) {
	return entryRows(v.Frames)
}

// TableRows implements render.Tabular.
func (v *StatsView) TableRows() ([]string, [][]string) {
	rows := [][]string{
		{"sources", fmt.Sprint(len(v.Sources))},
		{"frames_enqueued", fmt.Sprint(v.FramesEnqueued)},
		{"bytes_enqueued", fmt.Sprint(v.BytesEnqueued)},
		{"pending_frames", fmt.Sprint(v.PendingFrames)},
		{"pending_bytes", fmt.Sprint(v.PendingBytes)},
		{"flush_count", fmt.Sprint(v.FlushCount)},
	}
	triggers := make([]string, 0, len(v.FlushByTrigger))
	for k := range v.FlushByTrigger {
		triggers = append(triggers, k)
	}
	sort.Strings(triggers)
	for _, k := range triggers {
		rows = append(rows, []string{"flush_" + k, fmt.Sprint(v.FlushByTrigger[k])})
	}
	rows = append(rows,
		[]string{"delivered", fmt.Sprint(v.Delivered)},
		[]string{"delivery_failures", fmt.Sprint(v.DeliveryFailures)},
	)
	return []string{"counter", "value"}, rows
}

func entryRows(entries []EntryView) ([]string, [][]string) {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{strconv.Itoa(e.Index), strconv.Itoa(e.Len), strconv.Quote(e.Preview)})
	}
	return []string{"index", "len", "preview"}, rows
}
