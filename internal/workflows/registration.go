package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// TaskQueue is the queue deferred registrations run on.
const TaskQueue = "point-registration"

// ErrTypeRejected marks registry answers that retrying cannot fix.
const ErrTypeRejected = "RegistryRejected"

// ImagePayload carries the uploaded photo, which domain.ImageFile keeps out of JSON.
type ImagePayload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RegistrationInput is the input for the registration workflow.
type RegistrationInput struct {
	SubmissionID string
	SessionID    string
	Registration domain.PointRegistration
	Image        *ImagePayload
	CreatedAt    time.Time
}

// NewRegistrationInput builds the workflow input for a validated registration.
func NewRegistrationInput(submissionID, sessionID string, reg *domain.PointRegistration, createdAt time.Time) RegistrationInput {
	in := RegistrationInput{
		SubmissionID: submissionID,
		SessionID:    sessionID,
		Registration: *reg,
		CreatedAt:    createdAt,
	}
	in.Registration.Image = nil
	if reg.Image != nil {
		in.Image = &ImagePayload{
			Filename:    reg.Image.Filename,
			ContentType: reg.Image.ContentType,
			Data:        reg.Image.Data,
		}
	}
	return in
}

// PointRegistration rebuilds the payload sent to the registry.
func (in RegistrationInput) PointRegistration() *domain.PointRegistration {
	reg := in.Registration
	if in.Image != nil {
		reg.Image = &domain.ImageFile{
			Filename:    in.Image.Filename,
			ContentType: in.Image.ContentType,
			Data:        in.Image.Data,
		}
	}
	return &reg
}

func (in RegistrationInput) submission(status domain.SubmissionStatus, workflowID string, err error) domain.Submission {
	reg := in.Registration
	sub := domain.Submission{
		ID:         in.SubmissionID,
		SessionID:  in.SessionID,
		Name:       reg.Name,
		Email:      reg.Email,
		UF:         reg.UF,
		City:       reg.City,
		Location:   reg.Location,
		Items:      reg.Items,
		HasImage:   in.Image != nil,
		Status:     status,
		WorkflowID: workflowID,
		CreatedAt:  in.CreatedAt,
	}
	if err != nil {
		sub.Error = err.Error()
	}
	return sub
}

// RegistrationWorkflow sends a deferred registration to the registry,
// retrying transient failures, then records the outcome and announces the
// new point. Publishing is best-effort and never fails the workflow.
func RegistrationWorkflow(ctx workflow.Context, input RegistrationInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting registration workflow", "submission", input.SubmissionID)
	workflowID := workflow.GetInfo(ctx).WorkflowExecution.ID

	createCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        8,
			NonRetryableErrorTypes: []string{ErrTypeRejected},
		},
	})
	bookkeepingCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	})

	// Step 1: Register the point
	err := workflow.ExecuteActivity(createCtx, "CreatePoint", input).Get(ctx, nil)
	if err != nil {
		logger.Warn("registration failed", "submission", input.SubmissionID, "error", err)
		sub := input.submission(domain.SubmissionFailed, workflowID, err)
		_ = workflow.ExecuteActivity(bookkeepingCtx, "RecordSubmission", sub).Get(ctx, nil)
		return err
	}

	// Step 2: Record the outcome
	sub := input.submission(domain.SubmissionSucceeded, workflowID, nil)
	if err := workflow.ExecuteActivity(bookkeepingCtx, "RecordSubmission", sub).Get(ctx, nil); err != nil {
		logger.Warn("recording submission failed", "submission", input.SubmissionID, "error", err)
	}

	// Step 3: Announce the point
	event := domain.PointRegistered{
		Name:       input.Registration.Name,
		UF:         input.Registration.UF,
		City:       input.Registration.City,
		Location:   input.Registration.Location,
		Items:      input.Registration.Items,
		OccurredAt: workflow.Now(ctx).UTC(),
	}
	if err := workflow.ExecuteActivity(bookkeepingCtx, "PublishPointRegistered", event).Get(ctx, nil); err != nil {
		logger.Warn("publishing point.registered failed", "submission", input.SubmissionID, "error", err)
	}

	logger.Info("Point registered", "submission", input.SubmissionID)
	return nil
}
