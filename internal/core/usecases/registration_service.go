package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/ports"
	"github.com/samirrijal/ecoleta/internal/pkg/logging"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

// Marker labels shown next to the registration map marker.
const (
	MarkerYouAreHere     = "you are here"
	MarkerSelectedPlace  = "selected place"
	defaultMaxImageBytes = 5 << 20
)

// RegistrationOptions configures registration sessions.
type RegistrationOptions struct {
	IdleTTL       time.Duration
	FetchTimeout  time.Duration
	MaxImageBytes int
	// SyncFallback sends a deferred submission straight to the registry
	// when the scheduler refuses it as too large.
	SyncFallback bool
}

// RegistrationDeps are the collaborators of a RegistrationService.
// Submissions, Publisher and Scheduler are optional.
type RegistrationDeps struct {
	Registry    ports.Registry
	Localities  ports.LocalityDirectory
	Previewer   ports.ImagePreviewer
	Submissions ports.SubmissionRepository
	Publisher   ports.EventPublisher
	Scheduler   ports.SubmissionScheduler
}

// FieldsUpdate carries the text fields to change; nil fields are left as they are.
type FieldsUpdate struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Whatsapp *string `json:"whatsapp"`
}

// RegistrationSnapshot is the view state of a point-registration form.
type RegistrationSnapshot struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Email         string             `json:"email"`
	Whatsapp      string             `json:"whatsapp"`
	UF            string             `json:"uf"`
	City          string             `json:"city"`
	Items         []domain.Item      `json:"items"`
	Selected      []int              `json:"selected"`
	States        []domain.State     `json:"states"`
	Cities        []domain.City      `json:"cities"`
	CitiesPending bool               `json:"cities_pending"`
	Initial       *domain.Coordinate `json:"initial_position,omitempty"`
	Location      *domain.Coordinate `json:"location,omitempty"`
	MarkerLabel   string             `json:"marker_label,omitempty"`
	Image         *domain.ImageFile  `json:"image,omitempty"`
	Submitting    bool               `json:"submitting"`
	Attempts      int                `json:"attempts"`
	Error         *domain.ErrorView  `json:"error,omitempty"`
}

// SubmitResult reports one submit attempt.
type SubmitResult struct {
	Submission domain.Submission `json:"submission"`
	Completed  bool              `json:"completed"`
}

// RegistrationService manages point-registration sessions.
type RegistrationService struct {
	deps  RegistrationDeps
	opts  RegistrationOptions
	store *sessionStore[*RegistrationSession]
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(deps RegistrationDeps, opts RegistrationOptions) *RegistrationService {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = defaultMaxImageBytes
	}
	return &RegistrationService{
		deps:  deps,
		opts:  opts,
		store: newSessionStore[*RegistrationSession]("registration", opts.IdleTTL),
	}
}

// Open starts a registration form, loading the item catalog and the states.
// The session is returned even when a load failed; Reload retries it.
func (s *RegistrationService) Open(ctx context.Context) (*RegistrationSession, RegistrationSnapshot, error) {
	sess := newRegistrationSession(newSessionID(), s.deps, s.opts)
	s.store.put(sess)

	logging.FromContext(ctx).Info("registration session opened", "session", sess.ID())

	err := sess.Reload(ctx)
	return sess, sess.Snapshot(), err
}

// Get returns an open session.
func (s *RegistrationService) Get(id string) (*RegistrationSession, error) {
	sess, err := s.store.get(id)
	if err != nil {
		return nil, err
	}
	sess.touch()
	return sess, nil
}

// Active returns the number of open registration sessions.
func (s *RegistrationService) Active() int { return s.store.len() }

// Close discards a session.
func (s *RegistrationService) Close(id string) error {
	if !s.store.remove(id) {
		return domain.ErrNotFound
	}
	return nil
}

// Run expires idle sessions until ctx is done.
func (s *RegistrationService) Run(ctx context.Context) {
	s.store.run(ctx)
}

// Submit validates the form and sends it to the registry, or hands it to the
// background workflow when deferred is set. A successful or deferred
// submission completes the session. A failed one keeps the form for retry
// and returns the failure together with its audit record.
func (s *RegistrationService) Submit(ctx context.Context, id string, deferred bool) (*SubmitResult, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	reg, err := sess.beginSubmit()
	if err != nil {
		return nil, err
	}

	if deferred && s.deps.Scheduler == nil {
		sess.endSubmit(nil, nil)
		return nil, fmt.Errorf("deferred submission: %w", domain.ErrUnavailable)
	}

	sub := domain.Submission{
		ID:        uuid.NewString(),
		SessionID: id,
		Name:      reg.Name,
		Email:     reg.Email,
		UF:        reg.UF,
		City:      reg.City,
		Location:  reg.Location,
		Items:     reg.Items,
		HasImage:  reg.Image != nil,
		CreatedAt: time.Now().UTC(),
	}

	var sendErr error
	if deferred {
		sub.Status = domain.SubmissionDeferred
		sub.WorkflowID, sendErr = s.deps.Scheduler.Schedule(ctx, &sub, reg)
		if errors.Is(sendErr, domain.ErrPayloadTooLarge) && s.opts.SyncFallback {
			logging.FromContext(ctx).Info("deferred submission too large, sending directly",
				"session", id, "submission", sub.ID, "error", sendErr)
			sendErr = s.createPoint(ctx, id, reg)
			sub.Status = domain.SubmissionSucceeded
		}
	} else {
		sendErr = s.createPoint(ctx, id, reg)
		sub.Status = domain.SubmissionSucceeded
	}
	if sendErr != nil {
		sub.Status = domain.SubmissionFailed
		sub.Error = sendErr.Error()
	}

	metrics.Submissions.WithLabelValues(string(sub.Status)).Inc()
	s.record(ctx, &sub)
	sess.endSubmit(&sub, sendErr)

	log := logging.FromContext(ctx).With("session", id, "submission", sub.ID, "status", sub.Status)
	if sendErr != nil {
		log.Warn("point registration failed", "error", sendErr)
		return &SubmitResult{Submission: sub}, sendErr
	}
	log.Info("point registration accepted", "workflow_id", sub.WorkflowID)

	if sub.Status == domain.SubmissionSucceeded && s.deps.Publisher != nil {
		event := &domain.PointRegistered{
			Name:       reg.Name,
			UF:         reg.UF,
			City:       reg.City,
			Location:   reg.Location,
			Items:      reg.Items,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.deps.Publisher.PublishPointRegistered(ctx, event); err != nil {
			log.Warn("failed to publish point.registered", "error", err)
		}
	}

	s.store.remove(id)
	return &SubmitResult{Submission: sub, Completed: true}, nil
}

// Attempts lists the submit attempts of a session. With a submission
// repository configured the audit survives the session.
func (s *RegistrationService) Attempts(ctx context.Context, id string) ([]domain.Submission, error) {
	if s.deps.Submissions != nil {
		subs, err := s.deps.Submissions.ListBySession(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		return subs, nil
	}
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.attemptsCopy(), nil
}

func (s *RegistrationService) createPoint(ctx context.Context, id string, reg *domain.PointRegistration) error {
	ctx, span := tracer.Start(ctx, "registration.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", id),
		attribute.String("point.uf", reg.UF),
		attribute.String("point.city", reg.City),
		attribute.Int("point.items", len(reg.Items)),
	)

	if err := s.deps.Registry.CreatePoint(ctx, reg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (s *RegistrationService) record(ctx context.Context, sub *domain.Submission) {
	if s.deps.Submissions == nil {
		return
	}
	if err := s.deps.Submissions.Insert(ctx, sub); err != nil {
		logging.FromContext(ctx).Error("failed to record submission", "submission", sub.ID, "error", err)
	}
}

// RegistrationSession holds the state of one point-registration form.
type RegistrationSession struct {
	activity

	id   string
	deps RegistrationDeps
	opts RegistrationOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	submitting  bool
	form        domain.RegistrationForm
	items       []domain.Item
	itemsLoaded bool
	states      []domain.State
	stateLoaded bool
	cities      []domain.City
	citySeq     Sequencer
	citiesErr   error
	initial     *domain.Coordinate
	clicked     bool
	preview     []byte
	attempts    []domain.Submission
	lastErr     error
}

func newRegistrationSession(id string, deps RegistrationDeps, opts RegistrationOptions) *RegistrationSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &RegistrationSession{id: id, deps: deps, opts: opts, ctx: ctx, cancel: cancel}
	s.touch()
	return s
}

// ID returns the session id.
func (s *RegistrationSession) ID() string { return s.id }

// Close cancels an in-flight city fetch and releases the form.
func (s *RegistrationSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.citySeq.Stop()
	s.cancel()
}

// Reload loads whatever failed to load before: items, states, and the
// cities of the selected state.
func (s *RegistrationSession) Reload(ctx context.Context) error {
	s.touch()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	needItems, needStates := !s.itemsLoaded, !s.stateLoaded
	var cityDone <-chan error
	if s.form.UF != "" && s.citiesErr != nil {
		cityDone = s.startCitiesLocked(s.form.UF)
	}
	s.mu.Unlock()

	var errs []error
	if needItems {
		items, err := s.deps.Registry.ListItems(ctx)
		s.mu.Lock()
		if err == nil {
			s.items, s.itemsLoaded = items, true
		}
		s.mu.Unlock()
		errs = append(errs, err)
	}
	if needStates {
		states, err := s.deps.Localities.ListStates(ctx)
		s.mu.Lock()
		if err == nil {
			s.states, s.stateLoaded = states, true
		}
		s.mu.Unlock()
		errs = append(errs, err)
	}
	if cityDone != nil {
		errs = append(errs, awaitSettle(ctx, cityDone))
	}

	err := errors.Join(errs...)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return err
}

// Snapshot returns the current view state.
func (s *RegistrationSession) Snapshot() RegistrationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// SetFields updates the text fields of the form.
func (s *RegistrationSession) SetFields(u FieldsUpdate) (RegistrationSnapshot, error) {
	return s.mutate(func() error {
		if u.Name != nil {
			s.form.Name = *u.Name
		}
		if u.Email != nil {
			s.form.Email = *u.Email
		}
		if u.Whatsapp != nil {
			s.form.Whatsapp = *u.Whatsapp
		}
		return nil
	})
}

// ToggleItems flips the selection of each id, in order.
func (s *RegistrationSession) ToggleItems(ids ...int) (RegistrationSnapshot, error) {
	return s.mutate(func() error {
		s.form.Items = s.form.Items.ToggleAll(ids...)
		return nil
	})
}

// ReportPosition records the device position as the initial coordinate.
// Until the map is clicked the selected location follows it.
func (s *RegistrationSession) ReportPosition(ctx context.Context, report PositionReport) (RegistrationSnapshot, error) {
	return s.mutate(func() error {
		if report.Denied {
			if s.initial == nil {
				logging.FromContext(ctx).Warn("location permission denied", "session", s.id)
				return domain.ErrPermissionDenied
			}
			return nil
		}
		if err := validatePosition(report.Coordinate); err != nil {
			return err
		}
		if s.initial != nil {
			return nil
		}
		c := report.Coordinate
		s.initial = &c
		if !s.clicked {
			s.form.Location = c
		}
		return nil
	})
}

// ClickMap sets the selected location. The last click wins.
func (s *RegistrationSession) ClickMap(c domain.Coordinate) (RegistrationSnapshot, error) {
	return s.mutate(func() error {
		if err := validatePosition(c); err != nil {
			return err
		}
		s.form.Location = c
		s.clicked = true
		return nil
	})
}

// SelectState changes the state. A different state clears the selected city
// and the city list and fetches the new state's cities; reselecting the
// current state changes nothing.
func (s *RegistrationSession) SelectState(ctx context.Context, uf string) (RegistrationSnapshot, error) {
	s.touch()
	uf = strings.ToUpper(strings.TrimSpace(uf))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RegistrationSnapshot{}, domain.ErrSessionClosed
	}
	if uf == "" {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, domain.NewValidationError("uf", "is required")
	}
	if s.stateLoaded && !s.knownStateLocked(uf) {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, domain.NewValidationError("uf", fmt.Sprintf("unknown state %q", uf))
	}
	if uf == s.form.UF {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}

	s.form.UF = uf
	s.form.City = ""
	s.cities = nil
	done := s.startCitiesLocked(uf)
	s.mu.Unlock()

	err := awaitSettle(ctx, done)
	return s.Snapshot(), err
}

// SelectCity sets the city; it must be one of the selected state's cities.
// Names match ignoring case and accents; the IBGE spelling is kept.
func (s *RegistrationSession) SelectCity(name string) (RegistrationSnapshot, error) {
	name = strings.TrimSpace(name)
	folded := domain.FoldName(name)
	return s.mutate(func() error {
		if s.form.UF == "" {
			return domain.NewValidationError("uf", "select a state first")
		}
		for _, c := range s.cities {
			if domain.FoldName(c.Nome) == folded {
				s.form.City = c.Nome
				return nil
			}
		}
		return domain.NewValidationError("city", fmt.Sprintf("%q is not a city of %s", name, s.form.UF))
	})
}

// AttachImage validates an uploaded image and renders its preview. A new
// upload replaces the previous one.
func (s *RegistrationSession) AttachImage(filename string, data []byte) (RegistrationSnapshot, error) {
	s.touch()
	if len(data) == 0 {
		return s.Snapshot(), domain.NewValidationError("image", "is empty")
	}
	if len(data) > s.opts.MaxImageBytes {
		return s.Snapshot(), domain.NewValidationError("image", fmt.Sprintf("exceeds %d bytes", s.opts.MaxImageBytes))
	}
	contentType, err := s.deps.Previewer.Inspect(data)
	if err != nil {
		return s.Snapshot(), domain.NewValidationError("image", err.Error())
	}
	preview, err := s.deps.Previewer.Preview(data)
	if err != nil {
		return s.Snapshot(), domain.NewValidationError("image", err.Error())
	}

	return s.mutate(func() error {
		s.form.Image = &domain.ImageFile{
			Filename:    filename,
			ContentType: contentType,
			Data:        append([]byte(nil), data...),
		}
		s.preview = preview
		return nil
	})
}

// Preview returns the JPEG preview of the attached image.
func (s *RegistrationSession) Preview() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return nil, domain.ErrNotFound
	}
	return s.preview, nil
}

func (s *RegistrationSession) mutate(fn func() error) (RegistrationSnapshot, error) {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RegistrationSnapshot{}, domain.ErrSessionClosed
	}
	err := fn()
	return s.snapshotLocked(), err
}

func (s *RegistrationSession) knownStateLocked(uf string) bool {
	for _, st := range s.states {
		if st.Sigla == uf {
			return true
		}
	}
	return false
}

func (s *RegistrationSession) startCitiesLocked(uf string) <-chan error {
	ticket, ctx := s.citySeq.Issue(s.ctx)
	done := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		cities, err := s.deps.Localities.ListCities(ctx, uf)
		done <- s.settleCities(ticket, cities, err)
	}()
	return done
}

func (s *RegistrationSession) settleCities(ticket Ticket, cities []domain.City, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.citySeq.Settle(ticket) {
		metrics.Refreshes.WithLabelValues("cities", "discarded").Inc()
		slog.Debug("discarding stale city fetch", "session", s.id, "seq", ticket.Seq(), "latest", s.citySeq.Issued())
		return errSuperseded
	}
	if err != nil {
		metrics.Refreshes.WithLabelValues("cities", "failed").Inc()
		s.citiesErr = err
		return err
	}
	metrics.Refreshes.WithLabelValues("cities", "applied").Inc()
	s.cities = cities
	s.citiesErr = nil
	return nil
}

func (s *RegistrationSession) beginSubmit() (*domain.PointRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	if s.submitting {
		return nil, domain.ErrConflict
	}
	reg, err := s.form.Validate()
	if err != nil {
		return nil, err
	}
	s.submitting = true
	return reg, nil
}

func (s *RegistrationSession) endSubmit(sub *domain.Submission, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if sub != nil {
		s.attempts = append(s.attempts, *sub)
	}
	s.lastErr = err
}

func (s *RegistrationSession) attemptsCopy() []domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Submission{}, s.attempts...)
}

func (s *RegistrationSession) snapshotLocked() RegistrationSnapshot {
	err := s.lastErr
	if err == nil {
		err = s.citiesErr
	}
	snap := RegistrationSnapshot{
		ID:            s.id,
		Name:          s.form.Name,
		Email:         s.form.Email,
		Whatsapp:      s.form.Whatsapp,
		UF:            s.form.UF,
		City:          s.form.City,
		Items:         append([]domain.Item{}, s.items...),
		Selected:      s.form.Items.IDs(),
		States:        append([]domain.State{}, s.states...),
		Cities:        append([]domain.City{}, s.cities...),
		CitiesPending: s.citySeq.Pending(),
		Image:         s.form.Image,
		Submitting:    s.submitting,
		Attempts:      len(s.attempts),
		Error:         domain.NewErrorView(err),
	}
	if s.initial != nil {
		c := *s.initial
		snap.Initial = &c
	}
	if !s.form.Location.IsZero() {
		c := s.form.Location
		snap.Location = &c
		snap.MarkerLabel = MarkerSelectedPlace
		if s.initial != nil && c == *s.initial {
			snap.MarkerLabel = MarkerYouAreHere
		}
	}
	return snap
}

func validatePosition(c domain.Coordinate) error {
	if c.IsZero() {
		return domain.NewValidationError("coordinate", "is required")
	}
	return c.Validate()
}

// awaitSettle waits for a fetch to settle. A superseded fetch is not an error.
func awaitSettle(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		if errors.Is(err, errSuperseded) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
