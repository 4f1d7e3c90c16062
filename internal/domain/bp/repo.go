package bp

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for blood pressure readings.
type Repository interface {
	Create(ctx context.Context, r *Reading) error
	// AddThirdReading stores the third triple and the recomputed derived
	// fields. It only succeeds while the stored reading has no third triple.
	AddThirdReading(ctx context.Context, r *Reading) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reading, error)
	Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error)
	// ListByPatient returns readings with from <= reading_date <= to in
	// ascending date order. A nil session matches both.
	ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time, session *Session) ([]Reading, error)
	Recent(ctx context.Context, patientID uuid.UUID, limit int) ([]Reading, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
}
