package clinic

import (
	"context"

	"github.com/google/uuid"
)

// ClinicRepository defines the persistence interface for clinics.
type ClinicRepository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	Update(ctx context.Context, c *Clinic) error
	// Search returns active clinics matching f, ordered by name.
	Search(ctx context.Context, f ClinicFilter, limit, offset int) ([]*Clinic, int, error)
}

// SpecialityRepository defines the persistence interface for specialities.
type SpecialityRepository interface {
	Create(ctx context.Context, s *Speciality) error
	GetByID(ctx context.Context, id uuid.UUID) (*Speciality, error)
	Update(ctx context.Context, s *Speciality) error
	List(ctx context.Context, f SpecialityFilter, limit, offset int) ([]*Speciality, int, error)
}

// DoctorRepository defines the persistence interface for doctors and their
// speciality and clinic links.
type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
	// ListByClinic returns active, available doctors with an active
	// assignment at the clinic.
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Doctor, error)
	// AttachSpeciality inserts or updates the link.
	AttachSpeciality(ctx context.Context, l SpecialityLink) error
	// AttachClinic inserts or updates the assignment.
	AttachClinic(ctx context.Context, l ClinicLink) error
	SpecialitiesOf(ctx context.Context, doctorIDs []uuid.UUID) (map[uuid.UUID][]DoctorSpeciality, error)
}
