package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// Scheduler implements ports.SubmissionScheduler by starting a RegistrationWorkflow.
type Scheduler struct {
	client          client.Client
	taskQueue       string
	maxPayloadBytes int
}

// NewScheduler creates a Scheduler on taskQueue (TaskQueue when empty).
// Inputs larger than maxPayloadBytes are refused before they reach the
// server; zero disables the check.
func NewScheduler(c client.Client, taskQueue string, maxPayloadBytes int) *Scheduler {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Scheduler{client: c, taskQueue: taskQueue, maxPayloadBytes: maxPayloadBytes}
}

// WorkflowID returns the workflow id used for a submission.
func WorkflowID(submissionID string) string {
	return "point-registration-" + submissionID
}

// Schedule starts the workflow for a submission and returns its id. The
// submission id doubles as the idempotency key.
func (s *Scheduler) Schedule(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (string, error) {
	input := NewRegistrationInput(sub.ID, sub.SessionID, reg, sub.CreatedAt)
	if err := CheckPayload(input, s.maxPayloadBytes); err != nil {
		return "", err
	}
	run, err := s.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(sub.ID),
		TaskQueue: s.taskQueue,
	}, RegistrationWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("start registration workflow: %w", err)
	}
	return run.GetID(), nil
}

// CheckPayload encodes input with the default data converter and returns
// domain.ErrPayloadTooLarge when it exceeds limit bytes.
func CheckPayload(input RegistrationInput, limit int) error {
	if limit <= 0 {
		return nil
	}
	p, err := converter.GetDefaultDataConverter().ToPayload(input)
	if err != nil {
		return fmt.Errorf("encode registration input: %w", err)
	}
	if n := len(p.GetData()); n > limit {
		return fmt.Errorf("registration input is %d bytes, limit %d: %w", n, limit, domain.ErrPayloadTooLarge)
	}
	return nil
}
