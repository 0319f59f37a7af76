package ports

import (
	"context"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// SubmissionRepository persists the audit trail of registration attempts.
type SubmissionRepository interface {
	Insert(ctx context.Context, s *domain.Submission) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.Submission, error)
}
