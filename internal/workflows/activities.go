package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/ecoleta/internal/core/domain"
	"github.com/samirrijal/ecoleta/internal/core/ports"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

// RegistrationActivities holds the activity implementations for the registration workflow.
// Submissions and Publisher are optional.
type RegistrationActivities struct {
	Registry    ports.Registry
	Submissions ports.SubmissionRepository
	Publisher   ports.EventPublisher
}

// CreatePoint sends the registration to the registry. Answers the registry
// will never accept (4xx other than 429) are not retried.
func (a *RegistrationActivities) CreatePoint(ctx context.Context, input RegistrationInput) error {
	err := a.Registry.CreatePoint(ctx, input.PointRegistration())
	if err == nil {
		metrics.Submissions.WithLabelValues(string(domain.SubmissionSucceeded)).Inc()
		return nil
	}

	var remote *domain.RemoteError
	if errors.As(err, &remote) && !remote.Retryable() {
		metrics.Submissions.WithLabelValues(string(domain.SubmissionFailed)).Inc()
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeRejected, err)
	}
	activity.GetLogger(ctx).Warn("registry unavailable, will retry", "submission", input.SubmissionID, "error", err)
	return fmt.Errorf("create point: %w", err)
}

// RecordSubmission stores the outcome of a deferred submission.
func (a *RegistrationActivities) RecordSubmission(ctx context.Context, sub domain.Submission) error {
	if a.Submissions == nil {
		activity.GetLogger(ctx).Info("submission outcome (no repository)", "submission", sub.ID, "status", sub.Status)
		return nil
	}
	if err := a.Submissions.Insert(ctx, &sub); err != nil {
		return fmt.Errorf("record submission %s: %w", sub.ID, err)
	}
	return nil
}

// PublishPointRegistered announces a registered point.
func (a *RegistrationActivities) PublishPointRegistered(ctx context.Context, event domain.PointRegistered) error {
	if a.Publisher == nil {
		return nil
	}
	return a.Publisher.PublishPointRegistered(ctx, &event)
}
