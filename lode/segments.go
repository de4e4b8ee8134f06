package lode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/justapithecus/lode/lode"
)

// SegmentExt is the file extension of a stored ingest body.
const SegmentExt = ".ssef"

// DefaultDataset is the dataset segments are written to.
const DefaultDataset = "teeline"

// SegmentStore writes each ingest body as one immutable object:
//
//	datasets/<dataset>/partitions/day=<YYYY-MM-DD>/segments/<unique>.ssef
//
// Segment names sort in write order within a process.
type SegmentStore struct {
	factory lode.StoreFactory
	dataset string
	now     func() time.Time
	seq     atomic.Uint64

	once     sync.Once
	store    lode.Store
	storeErr error
}

// NewSegmentStore creates a segment store over factory. The store itself is
// created lazily on first use.
func NewSegmentStore(factory lode.StoreFactory, dataset string) *SegmentStore {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &SegmentStore{
		factory: factory,
		dataset: dataset,
		now:     time.Now,
	}
}

func (s *SegmentStore) getStore() (lode.Store, error) {
	s.once.Do(func() {
		s.store, s.storeErr = s.factory()
		if s.storeErr != nil {
			s.storeErr = WrapInitError(s.storeErr, s.dataset)
		}
	})
	return s.store, s.storeErr
}

// Prefix returns the dataset's partition root.
func (s *SegmentStore) Prefix() string {
	return fmt.Sprintf("datasets/%s/partitions/", s.dataset)
}

func (s *SegmentStore) segmentPath(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%sday=%s/segments/%020d-%06d%s",
		s.Prefix(), t.Format(time.DateOnly), t.UnixNano(), s.seq.Add(1)%1_000_000, SegmentExt)
}

// Append stores body unchanged as a new segment and returns its path.
func (s *SegmentStore) Append(ctx context.Context, body []byte) (string, error) {
	store, err := s.getStore()
	if err != nil {
		return "", err
	}
	path := s.segmentPath(s.now())
	if err := store.Put(ctx, path, bytes.NewReader(body)); err != nil {
		return "", WrapWriteError(err, path)
	}
	return path, nil
}

// List returns every segment path of the dataset in write order.
func (s *SegmentStore) List(ctx context.Context) ([]string, error) {
	store, err := s.getStore()
	if err != nil {
		return nil, err
	}
	paths, err := store.List(ctx, s.Prefix())
	if err != nil {
		wrapped := WrapListError(err, s.Prefix())
		if IsNotFound(wrapped) {
			return []string{}, nil
		}
		return nil, wrapped
	}

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if strings.HasSuffix(p, SegmentExt) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read returns the bytes of one segment.
func (s *SegmentStore) Read(ctx context.Context, path string) ([]byte, error) {
	store, err := s.getStore()
	if err != nil {
		return nil, err
	}
	rc, err := store.Get(ctx, path)
	if err != nil {
		return nil, WrapReadError(err, path)
	}
	defer func() { _ = rc.Close() }()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, WrapReadError(err, path)
	}
	return b, nil
}
