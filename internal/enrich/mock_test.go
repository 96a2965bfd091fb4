package enrich

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/inkshelf/enricher/internal/model"
	"github.com/inkshelf/enricher/internal/store"
)

// --- Researcher mock ---

type mockResearcher struct {
	mock.Mock
}

func (m *mockResearcher) Research(ctx context.Context, rec model.Record) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// --- Extractor mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, url string) (*ExtractResult, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ExtractResult), args.Error(1)
}

// --- Classifier mock ---

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, system string, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}

// --- Function stub for concurrency-heavy scheduler tests ---

type stubClassifier func(ctx context.Context, system string, prompt string) (string, error)

func (f stubClassifier) Classify(ctx context.Context, system string, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// --- In-memory store ---

// memStore implements store.Store for scheduler and writer tests. failAll
// fails whole batches; failURLs fails individual records.
type memStore struct {
	mu       sync.Mutex
	recs     map[string]model.Record
	batches  [][]model.Record
	failAll  error
	failURLs map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		recs:     make(map[string]model.Record),
		failURLs: make(map[string]error),
	}
}

func (m *memStore) FetchAll(_ context.Context) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) FetchByURL(_ context.Context, url string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recs[url]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) UpsertOne(_ context.Context, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failURLs[rec.URL]; err != nil {
		return err
	}
	m.recs[rec.URL] = rec
	return nil
}

func (m *memStore) UpsertBatch(_ context.Context, recs []model.Record) ([]store.UpsertOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	m.batches = append(m.batches, recs)
	outcomes := make([]store.UpsertOutcome, len(recs))
	for i, rec := range recs {
		outcomes[i] = store.UpsertOutcome{URL: rec.URL}
		if err := m.failURLs[rec.URL]; err != nil {
			outcomes[i].Err = err
			continue
		}
		m.recs[rec.URL] = rec
	}
	return outcomes, nil
}

func (m *memStore) DeleteByURL(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, url)
	return nil
}

func (m *memStore) Migrate(_ context.Context) error { return nil }
func (m *memStore) Close() error                    { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func (m *memStore) batchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *memStore) batchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sizes := make([]int, len(m.batches))
	for i, b := range m.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (m *memStore) get(url string) (model.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[url]
	return r, ok
}
