package usecases

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/ports"
	"github.com/samirrijal/ecoleta/internal/pkg/geospatial"
	"github.com/samirrijal/ecoleta/internal/pkg/logging"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/samirrijal/ecoleta/internal/core/usecases")

// errSuperseded marks a fetch whose result was discarded because a newer one was issued.
var errSuperseded = errors.New("superseded by a newer fetch")

// PositionReport is a one-shot device geolocation read.
type PositionReport struct {
	Coordinate domain.Coordinate `json:"coordinate"`
	Denied     bool              `json:"denied"`
}

// BrowserSnapshot is the view state of a point-browser screen.
type BrowserSnapshot struct {
	ID        string             `json:"id"`
	Region    domain.Region      `json:"region"`
	Position  *domain.Coordinate `json:"position,omitempty"`
	MapReady  bool               `json:"map_ready"`
	Items     []domain.Item      `json:"items"`
	Selected  []int              `json:"selected"`
	Points    []domain.Point     `json:"points"`
	// Distances maps point IDs to meters from Position once it is known.
	Distances map[int]float64    `json:"distances,omitempty"`
	Sequence  uint64             `json:"sequence"`
	Pending   bool               `json:"pending"`
	Stale     bool               `json:"stale"`
	Error     *domain.ErrorView  `json:"error,omitempty"`
}

// BrowserOptions configures browser sessions.
type BrowserOptions struct {
	IdleTTL      time.Duration
	FetchTimeout time.Duration
}

// BrowserService manages point-browser sessions: one per open screen.
type BrowserService struct {
	registry ports.Registry
	opts     BrowserOptions
	store    *sessionStore[*BrowserSession]
}

// NewBrowserService creates a new BrowserService.
func NewBrowserService(registry ports.Registry, opts BrowserOptions) *BrowserService {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	return &BrowserService{
		registry: registry,
		opts:     opts,
		store:    newSessionStore[*BrowserSession]("browser", opts.IdleTTL),
	}
}

// Open starts a session for region, loading the item catalog and the
// region's points for the empty selection.
func (s *BrowserService) Open(ctx context.Context, region domain.Region) (*BrowserSession, BrowserSnapshot, error) {
	region.UF = strings.ToUpper(strings.TrimSpace(region.UF))
	region.City = strings.TrimSpace(region.City)
	verr := &domain.ValidationError{}
	if region.UF == "" {
		verr.Add("uf", "is required")
	}
	if region.City == "" {
		verr.Add("city", "is required")
	}
	if !verr.Empty() {
		return nil, BrowserSnapshot{}, verr
	}

	sess := newBrowserSession(newSessionID(), region, s.registry, s.opts.FetchTimeout)
	s.store.put(sess)

	logging.FromContext(ctx).Info("browser session opened", "session", sess.ID(), "uf", region.UF, "city", region.City)

	snap, err := sess.load(ctx)
	return sess, snap, err
}

// Get returns an open session.
func (s *BrowserService) Get(id string) (*BrowserSession, error) {
	sess, err := s.store.get(id)
	if err != nil {
		return nil, err
	}
	sess.touch()
	return sess, nil
}

// Active returns the number of open browser sessions.
func (s *BrowserService) Active() int { return s.store.len() }

// Close ends a session, cancelling any in-flight fetch.
func (s *BrowserService) Close(id string) error {
	if !s.store.remove(id) {
		return domain.ErrNotFound
	}
	return nil
}

// PointRegistered refreshes every session browsing the event's region.
// Refreshes run in the background through each session's sequence guard.
func (s *BrowserService) PointRegistered(ctx context.Context, event *domain.PointRegistered) error {
	region := event.Region()
	n := 0
	s.store.each(func(sess *BrowserSession) {
		if sess.region.matches(region) {
			sess.refreshAsync()
			n++
		}
	})
	if n > 0 {
		logging.FromContext(ctx).Info("refreshing sessions for new point", "uf", region.UF, "city", region.City, "sessions", n)
	}
	return nil
}

// Run expires idle sessions until ctx is done.
func (s *BrowserService) Run(ctx context.Context) {
	s.store.run(ctx)
}

// BrowserSession holds the state of one point-browser screen. The region is
// fixed at creation; the point list is recomputed whenever the selection changes.
type BrowserSession struct {
	activity

	id           string
	region       browserRegion
	registry     ports.Registry
	fetchTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	items       []domain.Item
	itemsLoaded bool
	itemsErr    error
	selection   domain.Selection
	points      []domain.Point
	position    *domain.Coordinate
	seq         Sequencer
	lastErr     error
	stale       bool
	listeners   map[int]chan BrowserSnapshot
	nextListen  int
}

type browserRegion domain.Region

func (r browserRegion) matches(other domain.Region) bool {
	return domain.SameRegion(domain.Region(r), other)
}

func newBrowserSession(id string, region domain.Region, registry ports.Registry, fetchTimeout time.Duration) *BrowserSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &BrowserSession{
		id:           id,
		region:       browserRegion(region),
		registry:     registry,
		fetchTimeout: fetchTimeout,
		ctx:          ctx,
		cancel:       cancel,
		listeners:    make(map[int]chan BrowserSnapshot),
	}
	s.touch()
	return s
}

// ID returns the session id.
func (s *BrowserSession) ID() string { return s.id }

// Region returns the region captured when the session was opened.
func (s *BrowserSession) Region() domain.Region { return domain.Region(s.region) }

// load fetches the catalog and the first point list.
func (s *BrowserSession) load(ctx context.Context) (BrowserSnapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return BrowserSnapshot{}, domain.ErrSessionClosed
	}
	done := s.startRefreshLocked()
	s.mu.Unlock()

	itemsErr := s.loadItems(ctx)
	snap, err := s.await(ctx, done)
	if err == nil {
		err = itemsErr
	}
	return snap, err
}

func (s *BrowserSession) loadItems(ctx context.Context) error {
	items, err := s.registry.ListItems(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.itemsErr = err
		s.notifyLocked()
		return err
	}
	s.items = items
	s.itemsLoaded = true
	s.itemsErr = nil
	s.notifyLocked()
	return nil
}

// ReportPosition records the device position. The first successful report
// sets the initial position; later reports are ignored. A denial blocks the
// map until a position is reported.
func (s *BrowserSession) ReportPosition(ctx context.Context, report PositionReport) (BrowserSnapshot, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BrowserSnapshot{}, domain.ErrSessionClosed
	}

	if report.Denied {
		if s.position == nil {
			logging.FromContext(ctx).Warn("location permission denied", "session", s.id)
			return s.snapshotLocked(), domain.ErrPermissionDenied
		}
		return s.snapshotLocked(), nil
	}

	if err := validatePosition(report.Coordinate); err != nil {
		return s.snapshotLocked(), err
	}
	if s.position == nil {
		c := report.Coordinate
		s.position = &c
		s.notifyLocked()
	}
	return s.snapshotLocked(), nil
}

// Toggle flips the selection of each id, in order, as a single change, and
// refreshes the point list once if the resulting selection differs.
func (s *BrowserSession) Toggle(ctx context.Context, ids ...int) (BrowserSnapshot, error) {
	s.touch()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return BrowserSnapshot{}, domain.ErrSessionClosed
	}

	next := s.selection.ToggleAll(ids...)
	if next.Equal(s.selection) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	s.selection = next
	done := s.startRefreshLocked()
	s.mu.Unlock()

	return s.await(ctx, done)
}

// Refresh re-issues the point fetch for the current selection and reloads
// the catalog if it failed earlier.
func (s *BrowserSession) Refresh(ctx context.Context) (BrowserSnapshot, error) {
	s.touch()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return BrowserSnapshot{}, domain.ErrSessionClosed
	}
	needItems := !s.itemsLoaded
	done := s.startRefreshLocked()
	s.mu.Unlock()

	var itemsErr error
	if needItems {
		itemsErr = s.loadItems(ctx)
	}
	snap, err := s.await(ctx, done)
	if err == nil {
		err = itemsErr
	}
	return snap, err
}

func (s *BrowserSession) refreshAsync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.startRefreshLocked()
}

// Snapshot returns the current view state.
func (s *BrowserSession) Snapshot() BrowserSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving a snapshot after every change. Only
// the latest undelivered snapshot is kept. The channel is closed when the
// session closes or cancel is called.
func (s *BrowserSession) Subscribe() (<-chan BrowserSnapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan BrowserSnapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	key := s.nextListen
	s.nextListen++
	s.listeners[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.listeners[key]; ok {
				delete(s.listeners, key)
				close(c)
			}
		})
	}
}

// Close cancels in-flight fetches and releases subscribers.
func (s *BrowserSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.seq.Stop()
	s.cancel()
	for key, ch := range s.listeners {
		close(ch)
		delete(s.listeners, key)
	}
}

// startRefreshLocked issues a point fetch for the current region and
// selection. The returned channel yields the fetch's settlement.
func (s *BrowserSession) startRefreshLocked() <-chan error {
	ticket, ctx := s.seq.Issue(s.ctx)
	query := domain.PointQuery{Region: domain.Region(s.region), Items: s.selection}
	done := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()

		ctx, span := tracer.Start(ctx, "browser.refresh")
		span.SetAttributes(
			attribute.String("session.id", s.id),
			attribute.Int64("refresh.seq", int64(ticket.Seq())),
			attribute.String("refresh.items", query.Items.Join(",")),
		)
		points, err := s.registry.ListPoints(ctx, query)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		done <- s.settle(ticket, points, err)
	}()
	return done
}

// settle applies a fetch result only if its ticket is still the latest.
func (s *BrowserSession) settle(ticket Ticket, points []domain.Point, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.seq.Settle(ticket) {
		metrics.Refreshes.WithLabelValues("points", "discarded").Inc()
		slog.Debug("discarding stale point fetch", "session", s.id, "seq", ticket.Seq(), "latest", s.seq.Issued())
		return errSuperseded
	}

	if err != nil {
		metrics.Refreshes.WithLabelValues("points", "failed").Inc()
		slog.Warn("point fetch failed", "session", s.id, "seq", ticket.Seq(), "error", err)
		s.lastErr = err
		s.stale = true
		s.notifyLocked()
		return err
	}

	metrics.Refreshes.WithLabelValues("points", "applied").Inc()
	s.points = append([]domain.Point(nil), points...)
	s.lastErr = nil
	s.stale = false
	s.notifyLocked()
	return nil
}

// await waits for a fetch to settle or for the caller to give up. A
// superseded fetch is not an error: the newer fetch will deliver.
func (s *BrowserSession) await(ctx context.Context, done <-chan error) (BrowserSnapshot, error) {
	err := awaitSettle(ctx, done)
	return s.Snapshot(), err
}

func (s *BrowserSession) snapshotLocked() BrowserSnapshot {
	err := s.lastErr
	if err == nil {
		err = s.itemsErr
	}
	snap := BrowserSnapshot{
		ID:       s.id,
		Region:   domain.Region(s.region),
		MapReady: s.position != nil,
		Items:    append([]domain.Item{}, s.items...),
		Selected: s.selection.IDs(),
		Points:   append([]domain.Point{}, s.points...),
		Sequence: s.seq.Settled(),
		Pending:  s.seq.Pending(),
		Stale:    s.stale,
		Error:    domain.NewErrorView(err),
	}
	if s.position != nil {
		c := *s.position
		snap.Position = &c
		if len(s.points) > 0 {
			snap.Distances = make(map[int]float64, len(s.points))
			for _, p := range s.points {
				snap.Distances[p.ID] = geospatial.Distance(c, p.Coordinate())
			}
		}
	}
	return snap
}

func (s *BrowserSession) notifyLocked() {
	if len(s.listeners) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.listeners {
		select {
		case ch <- snap:
		default:
			// Replace the undelivered snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
