package report

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Report) error
	// GetByID returns the report with its content. Reports of other
	// patients are reported as not found.
	GetByID(ctx context.Context, patientID, id uuid.UUID) (*Report, error)
	// ListByPatient returns reports newest first, without content.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error)
	// GetFile returns a report with its content regardless of owner. It
	// serves mail retries, which only know the report id.
	GetFile(ctx context.Context, id uuid.UUID) (*Report, error)
	MarkEmailed(ctx context.Context, id uuid.UUID) error
}
