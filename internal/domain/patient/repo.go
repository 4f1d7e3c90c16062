package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for patients.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMobilePhone(ctx context.Context, phone string) (*Patient, error)
	// Exists reports whether another patient holds the phone or email.
	// exclude may be uuid.Nil.
	ExistsByMobilePhone(ctx context.Context, phone string, exclude uuid.UUID) (bool, error)
	ExistsByEmail(ctx context.Context, email string, exclude uuid.UUID) (bool, error)
	Update(ctx context.Context, p *Patient) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ClinicalDataRepository defines the persistence interface for clinical data.
type ClinicalDataRepository interface {
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalData, error)
	// Upsert inserts or replaces the patient's row.
	Upsert(ctx context.Context, c *ClinicalData) error
}
