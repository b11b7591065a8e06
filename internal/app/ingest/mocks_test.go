package ingest

import (
	"context"
	"sync"

	"github.com/adscanio/api/pkg/domain/content"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
)

// fakeContentRepo collects created items in memory.
type fakeContentRepo struct {
	mu    sync.Mutex
	items []*content.Item
	err   error
}

func (r *fakeContentRepo) Create(_ context.Context, item *content.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, item)
	return nil
}

func (r *fakeContentRepo) GetByID(_ context.Context, id shared.ID) (*content.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, shared.NewDomainError("NOT_FOUND", "content item not found", shared.ErrNotFound)
}

func (r *fakeContentRepo) ListByJobID(_ context.Context, jobID shared.ID) ([]*content.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*content.Item
	for _, item := range r.items {
		if item.JobID == jobID {
			out = append(out, item)
		}
	}
	return out, nil
}

// fakeMediaRepo collects created media assets in memory.
type fakeMediaRepo struct {
	mu     sync.Mutex
	assets []*content.MediaAsset
}

func (r *fakeMediaRepo) Create(_ context.Context, asset *content.MediaAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, asset)
	return nil
}

func (r *fakeMediaRepo) ListByContentItem(_ context.Context, contentItemID shared.ID) ([]*content.MediaAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*content.MediaAsset
	for _, asset := range r.assets {
		if asset.ContentItemID == contentItemID {
			out = append(out, asset)
		}
	}
	return out, nil
}

// fakeObjectStore keeps uploads in a map keyed by storage path.
type fakeObjectStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	mimeTypes map[string]string
	uploadErr error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects:   make(map[string][]byte),
		mimeTypes: make(map[string]string),
	}
}

func (s *fakeObjectStore) Upload(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.objects[key] = data
	s.mimeTypes[key] = contentType
	return nil
}

func (s *fakeObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "object not found", shared.ErrNotFound)
	}
	return data, nil
}

func (s *fakeObjectStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// fakeAnalyzer records the items handed to analysis.
type fakeAnalyzer struct {
	mu     sync.Mutex
	items  []*content.Item
	assets [][]*content.MediaAsset
	err    error
}

func (a *fakeAnalyzer) AnalyzeItem(_ context.Context, _ *scanjob.ScanJob, item *content.Item, assets []*content.MediaAsset) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.items = append(a.items, item)
	a.assets = append(a.assets, assets)
	return nil
}

func (a *fakeAnalyzer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// fakeTextFetcher scripts subtitle payload fetches.
type fakeTextFetcher struct {
	text  string
	err   error
	calls int
}

func (f *fakeTextFetcher) FetchStoredText(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}
