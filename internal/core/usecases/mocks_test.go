package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// --- Mock Registry ---

type mockRegistry struct {
	listItemsFn   func(ctx context.Context) ([]domain.Item, error)
	listPointsFn  func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error)
	createPointFn func(ctx context.Context, reg *domain.PointRegistration) error

	mu      sync.Mutex
	queries []domain.PointQuery
	created []*domain.PointRegistration
}

func (m *mockRegistry) ListItems(ctx context.Context) ([]domain.Item, error) {
	if m.listItemsFn != nil {
		return m.listItemsFn(ctx)
	}
	return []domain.Item{{ID: 1, Title: "Lâmpadas"}, {ID: 2, Title: "Pilhas e Baterias"}}, nil
}

func (m *mockRegistry) ListPoints(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.listPointsFn != nil {
		return m.listPointsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockRegistry) CreatePoint(ctx context.Context, reg *domain.PointRegistration) error {
	m.mu.Lock()
	m.created = append(m.created, reg)
	m.mu.Unlock()
	if m.createPointFn != nil {
		return m.createPointFn(ctx, reg)
	}
	return nil
}

func (m *mockRegistry) pointQueries() []domain.PointQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PointQuery(nil), m.queries...)
}

func (m *mockRegistry) createdPoints() []*domain.PointRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.PointRegistration(nil), m.created...)
}

// --- Mock LocalityDirectory ---

type mockLocalities struct {
	listStatesFn func(ctx context.Context) ([]domain.State, error)
	listCitiesFn func(ctx context.Context, uf string) ([]domain.City, error)

	mu         sync.Mutex
	cityCalls  []string
	stateCalls int
}

func (m *mockLocalities) ListStates(ctx context.Context) ([]domain.State, error) {
	m.mu.Lock()
	m.stateCalls++
	m.mu.Unlock()
	if m.listStatesFn != nil {
		return m.listStatesFn(ctx)
	}
	return []domain.State{
		{ID: 35, Sigla: "SP", Nome: "São Paulo"},
		{ID: 33, Sigla: "RJ", Nome: "Rio de Janeiro"},
		{ID: 41, Sigla: "PR", Nome: "Paraná"},
	}, nil
}

func (m *mockLocalities) ListCities(ctx context.Context, uf string) ([]domain.City, error) {
	m.mu.Lock()
	m.cityCalls = append(m.cityCalls, uf)
	m.mu.Unlock()
	if m.listCitiesFn != nil {
		return m.listCitiesFn(ctx, uf)
	}
	return citiesOf(uf), nil
}

func (m *mockLocalities) cityRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cityCalls...)
}

func citiesOf(uf string) []domain.City {
	switch uf {
	case "SP":
		return []domain.City{{ID: 3550308, Nome: "São Paulo"}, {ID: 3509502, Nome: "Campinas"}}
	case "RJ":
		return []domain.City{{ID: 3304557, Nome: "Rio de Janeiro"}, {ID: 3303302, Nome: "Niterói"}}
	case "PR":
		return []domain.City{{ID: 4106902, Nome: "Curitiba"}}
	}
	return nil
}

// --- Mock ImagePreviewer ---

type mockPreviewer struct {
	inspectFn func(data []byte) (string, error)
}

func (m *mockPreviewer) Inspect(data []byte) (string, error) {
	if m.inspectFn != nil {
		return m.inspectFn(data)
	}
	return "image/png", nil
}

func (m *mockPreviewer) Preview(data []byte) ([]byte, error) {
	return []byte("jpeg-preview"), nil
}

// --- Mock SubmissionRepository ---

type mockSubmissionRepo struct {
	mu   sync.Mutex
	subs []domain.Submission
}

func (m *mockSubmissionRepo) Insert(ctx context.Context, s *domain.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, *s)
	return nil
}

func (m *mockSubmissionRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Submission
	for _, s := range m.subs {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []*domain.PointRegistered
}

func (m *mockPublisher) PublishPointRegistered(ctx context.Context, event *domain.PointRegistered) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// --- Mock SubmissionScheduler ---

type mockScheduler struct {
	scheduleFn func(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (string, error)
}

func (m *mockScheduler) Schedule(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (string, error) {
	if m.scheduleFn != nil {
		return m.scheduleFn(ctx, sub, reg)
	}
	return "point-registration-" + sub.ID, nil
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
