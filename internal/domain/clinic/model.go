package clinic

import (
	"time"

	"github.com/google/uuid"
)

// Clinic types.
const (
	TypeNHS     = "NHS"
	TypePrivate = "Private"
	TypeMixed   = "Mixed"
)

// Assignment statuses of a doctor at a clinic.
const (
	AssignmentActive    = "active"
	AssignmentInactive  = "inactive"
	AssignmentSuspended = "suspended"
)

// Clinic maps to the clinic table.
type Clinic struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Postcode  string    `db:"postcode" json:"postcode"`
	Phone     *string   `db:"phone" json:"phone"`
	Email     *string   `db:"email" json:"email"`
	Type      string    `db:"type" json:"type"`
	Latitude  *float64  `db:"latitude" json:"latitude"`
	Longitude *float64  `db:"longitude" json:"longitude"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Speciality maps to the speciality table.
type Speciality struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Description *string   `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor maps to the doctor table. Specialities is filled by the service
// when a view needs it.
type Doctor struct {
	ID                uuid.UUID          `db:"id" json:"id"`
	FirstName         string             `db:"first_name" json:"first_name"`
	LastName          string             `db:"last_name" json:"last_name"`
	Email             string             `db:"email" json:"email"`
	Phone             *string            `db:"phone" json:"phone"`
	GMCNumber         string             `db:"gmc_number" json:"gmc_number"`
	DateOfBirth       *time.Time         `db:"date_of_birth" json:"date_of_birth"`
	Gender            *string            `db:"gender" json:"gender"`
	Qualifications    *string            `db:"qualifications" json:"qualifications"`
	YearsOfExperience int                `db:"years_of_experience" json:"years_of_experience"`
	Bio               *string            `db:"bio" json:"bio"`
	IsActive          bool               `db:"is_active" json:"is_active"`
	IsAvailable       bool               `db:"is_available" json:"is_available"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
	Specialities      []DoctorSpeciality `db:"-" json:"specialities,omitempty"`
}

// FullName is the doctor's display name.
func (d *Doctor) FullName() string {
	return "Dr. " + d.FirstName + " " + d.LastName
}

// DoctorSpeciality is a speciality as held by a particular doctor.
type DoctorSpeciality struct {
	SpecialityID      uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Description       *string    `json:"description"`
	IsPrimary         bool       `json:"is_primary"`
	CertificationDate *time.Time `json:"certification_date"`
	CertificationBody *string    `json:"certification_body"`
}

// SpecialityLink attaches a speciality to a doctor.
type SpecialityLink struct {
	DoctorID          uuid.UUID
	SpecialityID      uuid.UUID
	IsPrimary         bool
	CertificationDate time.Time
	CertificationBody string
}

// ClinicLink assigns a doctor to a clinic.
type ClinicLink struct {
	ClinicID  uuid.UUID
	DoctorID  uuid.UUID
	StartDate time.Time
	Status    string
}

// ClinicFilter narrows clinic searches. Empty fields match everything.
type ClinicFilter struct {
	Postcode string
	Name     string
	Type     string
}

// DoctorFilter narrows doctor listings.
type DoctorFilter struct {
	Name         string
	SpecialityID *uuid.UUID
	ClinicID     *uuid.UUID
	IsActive     *bool
	IsAvailable  *bool
	// PrimaryOnly restricts a speciality filter to doctors holding it as
	// their primary speciality.
	PrimaryOnly *bool
}

// SpecialityFilter narrows speciality listings.
type SpecialityFilter struct {
	Name     string
	IsActive *bool
}
