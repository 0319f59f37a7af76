package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// SubmissionRepo implements ports.SubmissionRepository with pgx.
type SubmissionRepo struct {
	db *DB
}

// NewSubmissionRepo creates a new SubmissionRepo.
func NewSubmissionRepo(db *DB) *SubmissionRepo {
	return &SubmissionRepo{db: db}
}

// Insert records an attempt. Recording the same id again updates its outcome,
// which is how a deferred submission reports its final status.
func (r *SubmissionRepo) Insert(ctx context.Context, s *domain.Submission) error {
	items := make([]int32, len(s.Items))
	for i, v := range s.Items {
		items[i] = int32(v)
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO submissions (id, session_id, name, email, uf, city, latitude, longitude,
		                         items, has_image, status, error, workflow_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, error = EXCLUDED.error,
		    workflow_id = COALESCE(NULLIF(EXCLUDED.workflow_id, ''), submissions.workflow_id),
		    updated_at = NOW()
	`, s.ID, s.SessionID, s.Name, s.Email, s.UF, s.City, s.Location.Latitude, s.Location.Longitude,
		items, s.HasImage, string(s.Status), s.Error, s.WorkflowID, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", s.ID, err)
	}
	return nil
}

// ListBySession returns a session's attempts, oldest first.
func (r *SubmissionRepo) ListBySession(ctx context.Context, sessionID string) ([]domain.Submission, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, session_id, name, email, uf, city, latitude, longitude,
		       items, has_image, status, error, workflow_id, created_at
		FROM submissions
		WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanSubmission)
}

// GetByID returns one attempt.
func (r *SubmissionRepo) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id::text, session_id, name, email, uf, city, latitude, longitude,
		       items, has_image, status, error, workflow_id, created_at
		FROM submissions
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSubmission)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSubmission(row pgx.CollectableRow) (domain.Submission, error) {
	var (
		s      domain.Submission
		status string
		items  []int32
	)
	err := row.Scan(&s.ID, &s.SessionID, &s.Name, &s.Email, &s.UF, &s.City,
		&s.Location.Latitude, &s.Location.Longitude, &items, &s.HasImage,
		&status, &s.Error, &s.WorkflowID, &s.CreatedAt)
	if err != nil {
		return s, err
	}
	s.Status = domain.SubmissionStatus(status)
	s.Items = make([]int, len(items))
	for i, v := range items {
		s.Items[i] = int(v)
	}
	return s, nil
}
