package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/usecases"
)

var curitiba = domain.Region{UF: "PR", City: "Curitiba"}

func newBrowser(reg *mockRegistry) *usecases.BrowserService {
	return usecases.NewBrowserService(reg, usecases.BrowserOptions{FetchTimeout: time.Second})
}

func TestBrowserService_OpenLoadsCatalogAndPoints(t *testing.T) {
	reg := &mockRegistry{
		listPointsFn: func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
			return []domain.Point{{ID: 7, Name: "Mercado Verde"}}, nil
		},
	}
	svc := newBrowser(reg)

	sess, snap, err := svc.Open(context.Background(), domain.Region{UF: " pr ", City: "Curitiba"})
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, curitiba, snap.Region)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, []domain.Point{{ID: 7, Name: "Mercado Verde"}}, snap.Points)
	assert.Empty(t, snap.Selected)
	assert.False(t, snap.Pending)
	assert.EqualValues(t, 1, snap.Sequence)

	queries := reg.pointQueries()
	require.Len(t, queries, 1)
	assert.Equal(t, curitiba, queries[0].Region)
	assert.Equal(t, 0, queries[0].Items.Len())
}

func TestBrowserService_OpenRequiresRegion(t *testing.T) {
	svc := newBrowser(&mockRegistry{})

	_, _, err := svc.Open(context.Background(), domain.Region{UF: "PR"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBrowserSession_ToggleScenario(t *testing.T) {
	reg := &mockRegistry{}
	svc := newBrowser(reg)
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	ctx := context.Background()
	snap, err := sess.Toggle(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, snap.Selected)

	snap, err = sess.Toggle(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, snap.Selected)

	snap, err = sess.Toggle(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, snap.Selected)

	queries := reg.pointQueries()
	require.Len(t, queries, 4)
	assert.Equal(t, []int{1}, queries[1].Items.IDs())
	assert.Equal(t, []int{1, 2}, queries[2].Items.IDs())
	assert.Equal(t, []int{2}, queries[3].Items.IDs())
}

func TestBrowserSession_OneRefreshPerChange(t *testing.T) {
	reg := &mockRegistry{}
	svc := newBrowser(reg)
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = sess.Toggle(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reg.pointQueries(), 2)

	// A batch is one change.
	_, err = sess.Toggle(ctx, 2, 3, 4)
	require.NoError(t, err)
	assert.Len(t, reg.pointQueries(), 3)

	// A batch that nets out to the same selection is no change.
	snap, err := sess.Toggle(ctx, 5, 5)
	require.NoError(t, err)
	assert.Len(t, reg.pointQueries(), 3)
	assert.Equal(t, []int{1, 2, 3, 4}, snap.Selected)

	_, err = sess.Toggle(ctx)
	require.NoError(t, err)
	assert.Len(t, reg.pointQueries(), 3)
}

func TestBrowserSession_ReplacesPointsWholesale(t *testing.T) {
	reg := &mockRegistry{
		listPointsFn: func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
			switch {
			case q.Items.Equal(domain.NewSelection(3)):
				return []domain.Point{{ID: 1, Name: "Ecoponto Bacacheri"}, {ID: 2, Name: "Ecoponto Boqueirão"}}, nil
			case q.Items.Equal(domain.NewSelection(3, 4)):
				return []domain.Point{{ID: 9, Name: "Ecoponto CIC"}}, nil
			}
			return nil, nil
		},
	}
	svc := newBrowser(reg)
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	snap, err := sess.Toggle(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, snap.Points, 2)

	snap, err = sess.Toggle(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []domain.Point{{ID: 9, Name: "Ecoponto CIC"}}, snap.Points)
}

func TestBrowserSession_DeselectToEmptyReplacesPoints(t *testing.T) {
	reg := &mockRegistry{
		listPointsFn: func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
			switch {
			case q.Items.Len() == 0:
				return []domain.Point{{ID: 5, Name: "Ecoponto Centro"}}, nil
			case q.Items.Contains(2):
				return []domain.Point{{ID: 1, Name: "Ecoponto Bacacheri"}, {ID: 2, Name: "Ecoponto Boqueirão"}}, nil
			}
			return nil, nil
		},
	}
	svc := newBrowser(reg)
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	snap, err := sess.Toggle(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, snap.Points, 2)
	assert.Equal(t, []int{2}, snap.Selected)

	snap, err = sess.Toggle(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, snap.Selected)
	assert.Equal(t, []domain.Point{{ID: 5, Name: "Ecoponto Centro"}}, snap.Points)

	queries := reg.pointQueries()
	require.Len(t, queries, 3)
	last := queries[len(queries)-1]
	assert.Zero(t, last.Items.Len())
	assert.Equal(t, curitiba, last.Region)
}

func TestBrowserSession_DiscardsStaleResponse(t *testing.T) {
	gate := make(chan struct{})
	slowStarted := make(chan context.Context, 1)
	stale := []domain.Point{{ID: 1, Name: "stale"}}
	fresh := []domain.Point{{ID: 2, Name: "fresh"}}

	reg := &mockRegistry{
		listPointsFn: func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
			switch {
			case q.Items.Equal(domain.NewSelection(1)):
				slowStarted <- ctx
				<-gate
				return stale, nil
			case q.Items.Equal(domain.NewSelection(1, 2)):
				return fresh, nil
			}
			return nil, nil
		},
	}
	svc := newBrowser(reg)
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	slowDone := make(chan usecases.BrowserSnapshot, 1)
	go func() {
		snap, err := sess.Toggle(context.Background(), 1)
		assert.NoError(t, err)
		slowDone <- snap
	}()

	slowCtx := <-slowStarted
	assert.True(t, sess.Snapshot().Pending)

	snap, err := sess.Toggle(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, fresh, snap.Points)

	// The superseded fetch was cancelled.
	assert.Error(t, slowCtx.Err())

	close(gate)
	select {
	case <-slowDone:
	case <-time.After(time.Second):
		t.Fatal("superseded toggle did not return")
	}

	final := sess.Snapshot()
	assert.Equal(t, fresh, final.Points)
	assert.Equal(t, []int{1, 2}, final.Selected)
	assert.False(t, final.Pending)
	assert.EqualValues(t, 3, final.Sequence)
}

func TestBrowserSession_FailureKeepsPointsAndRefreshRetries(t *testing.T) {
	fail := true
	reg := &mockRegistry{}
	reg.listPointsFn = func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
		if q.Items.Len() == 0 {
			return []domain.Point{{ID: 1}}, nil
		}
		if fail {
			return nil, &domain.RemoteError{Service: "registry", Op: "list points", StatusCode: 503}
		}
		return []domain.Point{{ID: 2}}, nil
	}
	svc := newBrowser(reg)
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	snap, err := sess.Toggle(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, snap.Stale)
	assert.Equal(t, []domain.Point{{ID: 1}}, snap.Points)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "upstream_error", snap.Error.Code)
	assert.True(t, snap.Error.Retryable)

	fail = false
	snap, err = sess.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Stale)
	assert.Nil(t, snap.Error)
	assert.Equal(t, []domain.Point{{ID: 2}}, snap.Points)
}

func TestBrowserSession_RefreshReloadsFailedCatalog(t *testing.T) {
	calls := 0
	reg := &mockRegistry{
		listItemsFn: func(ctx context.Context) ([]domain.Item, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("connection refused")
			}
			return []domain.Item{{ID: 1, Title: "Óleo de Cozinha"}}, nil
		},
	}
	svc := newBrowser(reg)
	sess, snap, err := svc.Open(context.Background(), curitiba)
	require.Error(t, err)
	assert.Empty(t, snap.Items)

	snap, err = sess.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
	assert.Equal(t, 2, calls)
}

func TestBrowserSession_Position(t *testing.T) {
	svc := newBrowser(&mockRegistry{})
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)
	ctx := context.Background()

	snap, err := sess.ReportPosition(ctx, usecases.PositionReport{Denied: true})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.False(t, snap.MapReady)

	first := domain.Coordinate{Latitude: -25.4284, Longitude: -49.2733}
	snap, err = sess.ReportPosition(ctx, usecases.PositionReport{Coordinate: first})
	require.NoError(t, err)
	assert.True(t, snap.MapReady)
	assert.Equal(t, &first, snap.Position)

	// The initial position is set once.
	snap, err = sess.ReportPosition(ctx, usecases.PositionReport{Coordinate: domain.Coordinate{Latitude: -23.5, Longitude: -46.6}})
	require.NoError(t, err)
	assert.Equal(t, &first, snap.Position)

	_, err = sess.ReportPosition(ctx, usecases.PositionReport{Coordinate: domain.Coordinate{Latitude: 120, Longitude: 1}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBrowserSession_DistancesFollowPosition(t *testing.T) {
	reg := &mockRegistry{
		listPointsFn: func(ctx context.Context, q domain.PointQuery) ([]domain.Point, error) {
			return []domain.Point{
				{ID: 1, Name: "Perto", Latitude: -25.4290, Longitude: -49.2740},
				{ID: 2, Name: "Longe", Latitude: -25.5000, Longitude: -49.3500},
			}, nil
		},
	}
	sess, snap, err := newBrowser(reg).Open(context.Background(), curitiba)
	require.NoError(t, err)
	assert.Nil(t, snap.Distances)

	snap, err = sess.ReportPosition(context.Background(), usecases.PositionReport{
		Coordinate: domain.Coordinate{Latitude: -25.4284, Longitude: -49.2733},
	})
	require.NoError(t, err)
	require.Len(t, snap.Distances, 2)
	assert.Less(t, snap.Distances[1], 200.0)
	assert.Greater(t, snap.Distances[2], snap.Distances[1])
}

func TestBrowserSession_SubscribeReceivesSnapshots(t *testing.T) {
	svc := newBrowser(&mockRegistry{})
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	updates, cancel := sess.Subscribe()
	defer cancel()

	_, err = sess.Toggle(context.Background(), 4)
	require.NoError(t, err)

	select {
	case snap := <-updates:
		assert.Equal(t, []int{4}, snap.Selected)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	require.NoError(t, svc.Close(sess.ID()))
	_, ok := <-updates
	assert.False(t, ok)
}

func TestBrowserService_PointRegisteredRefreshesMatchingRegion(t *testing.T) {
	reg := &mockRegistry{}
	svc := newBrowser(reg)
	_, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)
	_, _, err = svc.Open(context.Background(), domain.Region{UF: "SP", City: "Campinas"})
	require.NoError(t, err)
	require.Len(t, reg.pointQueries(), 2)

	err = svc.PointRegistered(context.Background(), &domain.PointRegistered{UF: "pr", City: "Curitiba"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(reg.pointQueries()) == 3 }, time.Second, 10*time.Millisecond)
	last := reg.pointQueries()[2]
	assert.Equal(t, curitiba, last.Region)
}

func TestBrowserService_Close(t *testing.T) {
	svc := newBrowser(&mockRegistry{})
	sess, _, err := svc.Open(context.Background(), curitiba)
	require.NoError(t, err)

	require.NoError(t, svc.Close(sess.ID()))

	_, err = svc.Get(sess.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Close(sess.ID()), domain.ErrNotFound)

	_, err = sess.Toggle(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}
