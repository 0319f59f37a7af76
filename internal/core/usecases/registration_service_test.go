package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/usecases"
)

type registrationFixture struct {
	registry   *mockRegistry
	localities *mockLocalities
	repo       *mockSubmissionRepo
	publisher  *mockPublisher
	scheduler  *mockScheduler
	svc        *usecases.RegistrationService
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()
	f := &registrationFixture{
		registry:   &mockRegistry{},
		localities: &mockLocalities{},
		repo:       &mockSubmissionRepo{},
		publisher:  &mockPublisher{},
		scheduler:  &mockScheduler{},
	}
	f.svc = usecases.NewRegistrationService(usecases.RegistrationDeps{
		Registry:    f.registry,
		Localities:  f.localities,
		Previewer:   &mockPreviewer{},
		Submissions: f.repo,
		Publisher:   f.publisher,
		Scheduler:   f.scheduler,
	}, usecases.RegistrationOptions{FetchTimeout: time.Second, MaxImageBytes: 1024})
	return f
}

func strPtr(s string) *string { return &s }

// fillForm brings a session to a submittable state.
func fillForm(t *testing.T, sess *usecases.RegistrationSession) {
	t.Helper()
	ctx := context.Background()
	_, err := sess.SetFields(usecases.FieldsUpdate{
		Name:     strPtr("Mercado Verde"),
		Email:    strPtr("contato@mercadoverde.com.br"),
		Whatsapp: strPtr("5541999990000"),
	})
	require.NoError(t, err)
	_, err = sess.SelectState(ctx, "PR")
	require.NoError(t, err)
	_, err = sess.SelectCity("Curitiba")
	require.NoError(t, err)
	_, err = sess.ClickMap(domain.Coordinate{Latitude: -25.43, Longitude: -49.27})
	require.NoError(t, err)
	_, err = sess.ToggleItems(1, 2)
	require.NoError(t, err)
}

func TestRegistrationService_OpenLoadsItemsAndStates(t *testing.T) {
	f := newRegistrationFixture(t)

	sess, snap, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Len(t, snap.Items, 2)
	assert.Len(t, snap.States, 3)
	assert.Empty(t, snap.Cities)
	assert.Nil(t, snap.Error)
}

func TestRegistrationSession_ReloadRetriesFailedLoads(t *testing.T) {
	f := newRegistrationFixture(t)
	down := true
	f.localities.listStatesFn = func(ctx context.Context) ([]domain.State, error) {
		if down {
			return nil, &domain.RemoteError{Service: "ibge", Op: "list states", StatusCode: 502}
		}
		return []domain.State{{ID: 41, Sigla: "PR", Nome: "Paraná"}}, nil
	}

	sess, snap, err := f.svc.Open(context.Background())
	require.Error(t, err)
	require.NotNil(t, snap.Error)
	assert.True(t, snap.Error.Retryable)
	assert.Len(t, snap.Items, 2)

	down = false
	require.NoError(t, sess.Reload(context.Background()))
	snap = sess.Snapshot()
	assert.Len(t, snap.States, 1)
	assert.Nil(t, snap.Error)
}

func TestRegistrationSession_StateCascadeResetsCity(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	snap, err := sess.SelectState(ctx, "sp")
	require.NoError(t, err)
	assert.Equal(t, "SP", snap.UF)
	assert.Equal(t, citiesOf("SP"), snap.Cities)

	snap, err = sess.SelectCity("Campinas")
	require.NoError(t, err)
	assert.Equal(t, "Campinas", snap.City)

	// Reselecting the same state keeps the city and does not refetch.
	snap, err = sess.SelectState(ctx, "SP")
	require.NoError(t, err)
	assert.Equal(t, "Campinas", snap.City)
	assert.Equal(t, []string{"SP"}, f.localities.cityRequests())

	snap, err = sess.SelectState(ctx, "RJ")
	require.NoError(t, err)
	assert.Equal(t, "RJ", snap.UF)
	assert.Empty(t, snap.City)
	assert.Equal(t, citiesOf("RJ"), snap.Cities)

	// A city of the previous state is no longer accepted.
	_, err = sess.SelectCity("Campinas")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegistrationSession_SelectStateRejectsUnknown(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)

	_, err = sess.SelectState(context.Background(), "XX")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = sess.SelectCity("Curitiba")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegistrationSession_DiscardsStaleCities(t *testing.T) {
	f := newRegistrationFixture(t)
	gate := make(chan struct{})
	spStarted := make(chan struct{})
	f.localities.listCitiesFn = func(ctx context.Context, uf string) ([]domain.City, error) {
		if uf == "SP" {
			close(spStarted)
			<-gate
		}
		return citiesOf(uf), nil
	}
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)

	spDone := make(chan struct{})
	go func() {
		defer close(spDone)
		_, err := sess.SelectState(context.Background(), "SP")
		assert.NoError(t, err)
	}()
	<-spStarted
	assert.True(t, sess.Snapshot().CitiesPending)

	snap, err := sess.SelectState(context.Background(), "RJ")
	require.NoError(t, err)
	assert.Equal(t, citiesOf("RJ"), snap.Cities)

	close(gate)
	<-spDone

	snap = sess.Snapshot()
	assert.Equal(t, "RJ", snap.UF)
	assert.Equal(t, citiesOf("RJ"), snap.Cities)
	assert.False(t, snap.CitiesPending)
}

func TestRegistrationSession_CoordinateCapture(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	ctx := context.Background()

	device := domain.Coordinate{Latitude: -23.55, Longitude: -46.63}
	snap, err := sess.ReportPosition(ctx, usecases.PositionReport{Coordinate: device})
	require.NoError(t, err)
	assert.Equal(t, &device, snap.Initial)
	assert.Equal(t, &device, snap.Location)
	assert.Equal(t, usecases.MarkerYouAreHere, snap.MarkerLabel)

	first := domain.Coordinate{Latitude: -23.56, Longitude: -46.64}
	second := domain.Coordinate{Latitude: -23.57, Longitude: -46.65}
	_, err = sess.ClickMap(first)
	require.NoError(t, err)
	snap, err = sess.ClickMap(second)
	require.NoError(t, err)
	assert.Equal(t, &second, snap.Location)
	assert.Equal(t, &device, snap.Initial)
	assert.Equal(t, usecases.MarkerSelectedPlace, snap.MarkerLabel)

	_, err = sess.ClickMap(domain.Coordinate{Latitude: 91, Longitude: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRegistrationSession_LateDeviceReportKeepsClick(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)

	click := domain.Coordinate{Latitude: -25.43, Longitude: -49.27}
	_, err = sess.ClickMap(click)
	require.NoError(t, err)

	device := domain.Coordinate{Latitude: -25.40, Longitude: -49.20}
	snap, err := sess.ReportPosition(context.Background(), usecases.PositionReport{Coordinate: device})
	require.NoError(t, err)
	assert.Equal(t, &click, snap.Location)
	assert.Equal(t, &device, snap.Initial)
}

func TestRegistrationSession_PositionDenied(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)

	snap, err := sess.ReportPosition(context.Background(), usecases.PositionReport{Denied: true})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Nil(t, snap.Initial)
}

func TestRegistrationSession_AttachImage(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)

	_, err = sess.Preview()
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = sess.AttachImage("big.png", make([]byte, 2048))
	assert.ErrorIs(t, err, domain.ErrValidation)

	snap, err := sess.AttachImage("fachada.png", []byte("png-bytes"))
	require.NoError(t, err)
	require.NotNil(t, snap.Image)
	assert.Equal(t, "fachada.png", snap.Image.Filename)
	assert.Equal(t, "image/png", snap.Image.ContentType)

	preview, err := sess.Preview()
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-preview"), preview)
}

func TestRegistrationSession_AttachImageRejectsNonImage(t *testing.T) {
	f := newRegistrationFixture(t)
	f.svc = usecases.NewRegistrationService(usecases.RegistrationDeps{
		Registry:   f.registry,
		Localities: f.localities,
		Previewer: &mockPreviewer{inspectFn: func(data []byte) (string, error) {
			return "", errors.New("application/pdf is not an image")
		}},
	}, usecases.RegistrationOptions{})
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)

	snap, err := sess.AttachImage("doc.pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Nil(t, snap.Image)
}

func TestRegistrationService_SubmitSuccess(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)
	_, err = sess.AttachImage("fachada.png", []byte("png-bytes"))
	require.NoError(t, err)

	res, err := f.svc.Submit(context.Background(), sess.ID(), false)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, domain.SubmissionSucceeded, res.Submission.Status)
	assert.True(t, res.Submission.HasImage)

	created := f.registry.createdPoints()
	require.Len(t, created, 1)
	assert.Equal(t, "Mercado Verde", created[0].Name)
	assert.Equal(t, "PR", created[0].UF)
	assert.Equal(t, "Curitiba", created[0].City)
	assert.Equal(t, []int{1, 2}, created[0].Items)
	require.NotNil(t, created[0].Image)
	assert.Equal(t, []byte("png-bytes"), created[0].Image.Data)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.Region{UF: "PR", City: "Curitiba"}, f.publisher.events[0].Region())

	// The session is completed.
	_, err = f.svc.Get(sess.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	attempts, err := f.svc.Attempts(context.Background(), sess.ID())
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.SubmissionSucceeded, attempts[0].Status)
}

func TestRegistrationService_SubmitFailureKeepsForm(t *testing.T) {
	f := newRegistrationFixture(t)
	f.registry.createPointFn = func(ctx context.Context, reg *domain.PointRegistration) error {
		return &domain.RemoteError{Service: "registry", Op: "create point", StatusCode: 500}
	}
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)

	res, err := f.svc.Submit(context.Background(), sess.ID(), false)
	require.Error(t, err)
	var remote *domain.RemoteError
	assert.True(t, errors.As(err, &remote))
	require.NotNil(t, res)
	assert.False(t, res.Completed)
	assert.Equal(t, domain.SubmissionFailed, res.Submission.Status)
	assert.NotEmpty(t, res.Submission.Error)
	assert.Empty(t, f.publisher.events)

	got, err := f.svc.Get(sess.ID())
	require.NoError(t, err)
	snap := got.Snapshot()
	assert.Equal(t, "Mercado Verde", snap.Name)
	assert.Equal(t, "Curitiba", snap.City)
	assert.Equal(t, []int{1, 2}, snap.Selected)
	assert.Equal(t, 1, snap.Attempts)
	assert.False(t, snap.Submitting)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "upstream_error", snap.Error.Code)

	// Retry succeeds once the registry recovers.
	f.registry.createPointFn = nil
	res, err = f.svc.Submit(context.Background(), sess.ID(), false)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Len(t, f.repo.subs, 2)
}

func TestRegistrationService_SubmitValidation(t *testing.T) {
	f := newRegistrationFixture(t)
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	_, err = sess.SetFields(usecases.FieldsUpdate{Name: strPtr("Mercado Verde"), Email: strPtr("not-an-email")})
	require.NoError(t, err)

	_, err = f.svc.Submit(context.Background(), sess.ID(), false)
	require.Error(t, err)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "whatsapp")
	assert.Contains(t, verr.Fields, "items")
	assert.Contains(t, verr.Fields, "location")

	assert.Empty(t, f.registry.createdPoints())
	assert.Empty(t, f.repo.subs)
}

func TestRegistrationService_SubmitDeferred(t *testing.T) {
	f := newRegistrationFixture(t)
	var scheduled *domain.PointRegistration
	f.scheduler.scheduleFn = func(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (string, error) {
		assert.Equal(t, domain.SubmissionDeferred, sub.Status)
		scheduled = reg
		return "point-registration-" + sub.ID, nil
	}
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)

	res, err := f.svc.Submit(context.Background(), sess.ID(), true)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, domain.SubmissionDeferred, res.Submission.Status)
	assert.Equal(t, "point-registration-"+res.Submission.ID, res.Submission.WorkflowID)
	require.NotNil(t, scheduled)
	assert.Equal(t, "Curitiba", scheduled.City)

	// The workflow registers the point, not the request.
	assert.Empty(t, f.registry.createdPoints())
	assert.Empty(t, f.publisher.events)
}

func TestRegistrationService_SubmitDeferredWithoutScheduler(t *testing.T) {
	f := newRegistrationFixture(t)
	f.svc = usecases.NewRegistrationService(usecases.RegistrationDeps{
		Registry:   f.registry,
		Localities: f.localities,
		Previewer:  &mockPreviewer{},
	}, usecases.RegistrationOptions{})
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)

	_, err = f.svc.Submit(context.Background(), sess.ID(), true)
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	// The form is still there and can be sent directly.
	res, err := f.svc.Submit(context.Background(), sess.ID(), false)
	require.NoError(t, err)
	assert.True(t, res.Completed)
}

func TestRegistrationService_OversizedDeferredFallsBackToDirect(t *testing.T) {
	f := newRegistrationFixture(t)
	f.svc = usecases.NewRegistrationService(usecases.RegistrationDeps{
		Registry:   f.registry,
		Localities: f.localities,
		Previewer:  &mockPreviewer{},
		Scheduler:  f.scheduler,
	}, usecases.RegistrationOptions{FetchTimeout: time.Second, SyncFallback: true})
	f.scheduler.scheduleFn = func(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (string, error) {
		return "", fmt.Errorf("registration input is 7000000 bytes: %w", domain.ErrPayloadTooLarge)
	}
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)

	res, err := f.svc.Submit(context.Background(), sess.ID(), true)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, domain.SubmissionSucceeded, res.Submission.Status)
	assert.Empty(t, res.Submission.WorkflowID)
	assert.Len(t, f.registry.createdPoints(), 1)
}

func TestRegistrationService_OversizedDeferredRejectedWithoutFallback(t *testing.T) {
	f := newRegistrationFixture(t)
	f.scheduler.scheduleFn = func(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (string, error) {
		return "", fmt.Errorf("registration input is 7000000 bytes: %w", domain.ErrPayloadTooLarge)
	}
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)

	res, err := f.svc.Submit(context.Background(), sess.ID(), true)
	require.ErrorIs(t, err, domain.ErrPayloadTooLarge)
	require.NotNil(t, res)
	assert.Equal(t, domain.SubmissionFailed, res.Submission.Status)
	assert.Empty(t, f.registry.createdPoints())

	// The form survives for a direct submit.
	res, err = f.svc.Submit(context.Background(), sess.ID(), false)
	require.NoError(t, err)
	assert.True(t, res.Completed)
}

func TestRegistrationService_AttemptsWithoutRepository(t *testing.T) {
	f := newRegistrationFixture(t)
	f.registry.createPointFn = func(ctx context.Context, reg *domain.PointRegistration) error {
		return &domain.RemoteError{Service: "registry", Op: "create point", StatusCode: 400}
	}
	f.svc = usecases.NewRegistrationService(usecases.RegistrationDeps{
		Registry:   f.registry,
		Localities: f.localities,
		Previewer:  &mockPreviewer{},
	}, usecases.RegistrationOptions{})
	sess, _, err := f.svc.Open(context.Background())
	require.NoError(t, err)
	fillForm(t, sess)

	_, err = f.svc.Submit(context.Background(), sess.ID(), false)
	require.Error(t, err)

	attempts, err := f.svc.Attempts(context.Background(), sess.ID())
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.SubmissionFailed, attempts[0].Status)
}
