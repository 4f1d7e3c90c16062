package clinic

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/myhomebp/myhomebp/internal/platform/db"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

var (
	ErrNotFound  = db.ErrNotFound
	ErrDuplicate = db.ErrDuplicate
)

// Search and nearby limits.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50
	DefaultRadiusMiles = 10
	MaxRadiusMiles     = 50
	DefaultNearbyLimit = 5
	MaxNearbyLimit     = 20
)

// DefaultCertificationBody is recorded when an attachment names none.
const DefaultCertificationBody = "GMC"

// TxFunc runs fn inside a transaction.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	clinics      ClinicRepository
	specialities SpecialityRepository
	doctors      DoctorRepository
	tx           TxFunc
	clock        func() time.Time
}

func NewService(clinics ClinicRepository, specialities SpecialityRepository, doctors DoctorRepository) *Service {
	return &Service{
		clinics:      clinics,
		specialities: specialities,
		doctors:      doctors,
		tx:           noTx,
		clock:        time.Now,
	}
}

// SetTx makes multi-step writes run through tx.
func (s *Service) SetTx(tx TxFunc) {
	if tx != nil {
		s.tx = tx
	}
}

// SetClock overrides the time source used for default dates.
func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// -- Clinic --

// NearbyResult is the answer to a nearby-clinics query.
type NearbyResult struct {
	Clinics        []*Clinic `json:"clinics"`
	SearchPostcode string    `json:"search_postcode"`
	RadiusMiles    int       `json:"radius_miles"`
}

// SearchClinics finds active clinics. A zero limit means the default.
func (s *Service) SearchClinics(ctx context.Context, f ClinicFilter, limit int) ([]*Clinic, error) {
	v := response.NewValidationError()
	limit = boundedInt(v, "limit", limit, DefaultSearchLimit, MaxSearchLimit)
	if f.Type != "" && !validClinicType(f.Type) {
		v.Add("type", "The selected type is invalid.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	out, _, err := s.clinics.Search(ctx, f, limit, 0)
	return out, err
}

// NearbyClinics matches clinics on the postcode. Distance is not computed;
// the radius is echoed back to the caller.
func (s *Service) NearbyClinics(ctx context.Context, postcode string, radius, limit int) (*NearbyResult, error) {
	v := response.NewValidationError()
	postcode = strings.TrimSpace(postcode)
	if postcode == "" {
		v.Add("postcode", "The postcode field is required.")
	}
	radius = boundedInt(v, "radius", radius, DefaultRadiusMiles, MaxRadiusMiles)
	limit = boundedInt(v, "limit", limit, DefaultNearbyLimit, MaxNearbyLimit)
	if err := v.Err(); err != nil {
		return nil, err
	}

	clinics, _, err := s.clinics.Search(ctx, ClinicFilter{Postcode: postcode}, limit, 0)
	if err != nil {
		return nil, err
	}
	return &NearbyResult{
		Clinics:        clinics,
		SearchPostcode: strings.ToUpper(postcode),
		RadiusMiles:    radius,
	}, nil
}

func (s *Service) ListClinics(ctx context.Context, f ClinicFilter, limit, offset int) ([]*Clinic, int, error) {
	if f.Type != "" && !validClinicType(f.Type) {
		v := response.NewValidationError()
		v.Add("type", "The selected type is invalid.")
		return nil, 0, v.Err()
	}
	return s.clinics.Search(ctx, f, limit, offset)
}

// GetClinic returns an active clinic.
func (s *Service) GetClinic(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := s.clinics.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, ErrNotFound
	}
	return c, nil
}

// ClinicDoctors lists the doctors working at an active clinic, with their
// specialities.
func (s *Service) ClinicDoctors(ctx context.Context, clinicID uuid.UUID) (*Clinic, []*Doctor, error) {
	c, err := s.GetClinic(ctx, clinicID)
	if err != nil {
		return nil, nil, err
	}
	doctors, err := s.doctors.ListByClinic(ctx, clinicID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.withSpecialities(ctx, doctors); err != nil {
		return nil, nil, err
	}
	return c, doctors, nil
}

func (s *Service) CreateClinic(ctx context.Context, c *Clinic) error {
	c.Postcode = strings.ToUpper(strings.TrimSpace(c.Postcode))
	if c.Type == "" {
		c.Type = TypeNHS
	}
	if err := validateClinic(c); err != nil {
		return err
	}
	c.IsActive = true
	return s.clinics.Create(ctx, c)
}

// UpdateClinic loads the clinic, applies patch and stores the result.
func (s *Service) UpdateClinic(ctx context.Context, id uuid.UUID, patch func(*Clinic)) (*Clinic, error) {
	c, err := s.clinics.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch(c)
	c.Postcode = strings.ToUpper(strings.TrimSpace(c.Postcode))
	if err := validateClinic(c); err != nil {
		return nil, err
	}
	if err := s.clinics.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteClinic deactivates the clinic. Patients keep their reference.
func (s *Service) DeleteClinic(ctx context.Context, id uuid.UUID) error {
	_, err := s.UpdateClinic(ctx, id, func(c *Clinic) { c.IsActive = false })
	return err
}

func validateClinic(c *Clinic) error {
	v := response.NewValidationError()
	required(v, "name", c.Name)
	required(v, "address", c.Address)
	required(v, "postcode", c.Postcode)
	if len(c.Postcode) > 10 {
		v.Add("postcode", "The postcode may not be greater than 10 characters.")
	}
	if !validClinicType(c.Type) {
		v.Add("type", "The selected type is invalid.")
	}
	if c.Email != nil && *c.Email != "" && !validEmail(*c.Email) {
		v.Add("email", "The email must be a valid email address.")
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90) {
		v.Add("latitude", "The latitude must be between -90 and 90.")
	}
	if c.Longitude != nil && (*c.Longitude < -180 || *c.Longitude > 180) {
		v.Add("longitude", "The longitude must be between -180 and 180.")
	}
	return v.Err()
}

func validClinicType(t string) bool {
	switch t {
	case TypeNHS, TypePrivate, TypeMixed:
		return true
	}
	return false
}

// -- Speciality --

func (s *Service) ListSpecialities(ctx context.Context, f SpecialityFilter, limit, offset int) ([]*Speciality, int, error) {
	return s.specialities.List(ctx, f, limit, offset)
}

func (s *Service) GetSpeciality(ctx context.Context, id uuid.UUID) (*Speciality, error) {
	return s.specialities.GetByID(ctx, id)
}

// SpecialityDoctors lists active, available doctors holding the speciality.
func (s *Service) SpecialityDoctors(ctx context.Context, id uuid.UUID, primaryOnly *bool, limit, offset int) (*Speciality, []*Doctor, int, error) {
	sp, err := s.specialities.GetByID(ctx, id)
	if err != nil {
		return nil, nil, 0, err
	}
	yes := true
	doctors, total, err := s.ListDoctors(ctx, DoctorFilter{
		SpecialityID: &id,
		PrimaryOnly:  primaryOnly,
		IsActive:     &yes,
		IsAvailable:  &yes,
	}, limit, offset)
	if err != nil {
		return nil, nil, 0, err
	}
	return sp, doctors, total, nil
}

func (s *Service) CreateSpeciality(ctx context.Context, sp *Speciality) error {
	sp.Code = strings.ToUpper(strings.TrimSpace(sp.Code))
	if err := validateSpeciality(sp); err != nil {
		return err
	}
	sp.IsActive = true
	return s.specialities.Create(ctx, sp)
}

func (s *Service) UpdateSpeciality(ctx context.Context, id uuid.UUID, patch func(*Speciality)) (*Speciality, error) {
	sp, err := s.specialities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch(sp)
	sp.Code = strings.ToUpper(strings.TrimSpace(sp.Code))
	if err := validateSpeciality(sp); err != nil {
		return nil, err
	}
	if err := s.specialities.Update(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) DeleteSpeciality(ctx context.Context, id uuid.UUID) error {
	_, err := s.UpdateSpeciality(ctx, id, func(sp *Speciality) { sp.IsActive = false })
	return err
}

func validateSpeciality(sp *Speciality) error {
	v := response.NewValidationError()
	required(v, "name", sp.Name)
	required(v, "code", sp.Code)
	if len(sp.Code) > 10 {
		v.Add("code", "The code may not be greater than 10 characters.")
	}
	return v.Err()
}

// -- Doctor --

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	doctors, total, err := s.doctors.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := s.withSpecialities(ctx, doctors); err != nil {
		return nil, 0, err
	}
	return doctors, total, nil
}

// GetDoctor returns the doctor with their specialities.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.withSpecialities(ctx, []*Doctor{d}); err != nil {
		return nil, err
	}
	return d, nil
}

// NewDoctor is an admin request to create a doctor. The first speciality
// becomes the primary one.
type NewDoctor struct {
	Doctor        *Doctor
	SpecialityIDs []uuid.UUID
	ClinicIDs     []uuid.UUID
}

func (s *Service) CreateDoctor(ctx context.Context, in NewDoctor) (*Doctor, error) {
	d := in.Doctor
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	if err := validateDoctor(d); err != nil {
		return nil, err
	}
	d.IsActive = true
	d.IsAvailable = true

	today := s.today()
	body := DefaultCertificationBody
	err := s.tx(ctx, func(ctx context.Context) error {
		if err := s.doctors.Create(ctx, d); err != nil {
			return err
		}
		for i, sid := range in.SpecialityIDs {
			if _, err := s.specialities.GetByID(ctx, sid); err != nil {
				return unknownID(err, "speciality_ids")
			}
			if err := s.doctors.AttachSpeciality(ctx, SpecialityLink{
				DoctorID:          d.ID,
				SpecialityID:      sid,
				IsPrimary:         i == 0,
				CertificationDate: today,
				CertificationBody: body,
			}); err != nil {
				return err
			}
		}
		for _, cid := range in.ClinicIDs {
			if _, err := s.clinics.GetByID(ctx, cid); err != nil {
				return unknownID(err, "clinic_ids")
			}
			if err := s.doctors.AttachClinic(ctx, ClinicLink{
				ClinicID:  cid,
				DoctorID:  d.ID,
				StartDate: today,
				Status:    AssignmentActive,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetDoctor(ctx, d.ID)
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, patch func(*Doctor)) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch(d)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	if err := validateDoctor(d); err != nil {
		return nil, err
	}
	if err := s.doctors.Update(ctx, d); err != nil {
		return nil, err
	}
	return s.GetDoctor(ctx, id)
}

// DeleteDoctor deactivates the doctor and marks them unavailable.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	_, err := s.UpdateDoctor(ctx, id, func(d *Doctor) {
		d.IsActive = false
		d.IsAvailable = false
	})
	return err
}

// SpecialityAttachment links specialities to a doctor. PrimaryID, when
// set, must be one of SpecialityIDs.
type SpecialityAttachment struct {
	SpecialityIDs     []uuid.UUID
	CertificationDate *time.Time
	CertificationBody string
	PrimaryID         *uuid.UUID
}

func (s *Service) AttachSpecialities(ctx context.Context, doctorID uuid.UUID, a SpecialityAttachment) (*Doctor, error) {
	v := response.NewValidationError()
	if len(a.SpecialityIDs) == 0 {
		v.Add("speciality_ids", "The speciality ids field is required.")
	}
	if a.PrimaryID != nil && !containsID(a.SpecialityIDs, *a.PrimaryID) {
		v.Add("is_primary", "The primary speciality must be one of the attached specialities.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}

	certDate := s.today()
	if a.CertificationDate != nil {
		certDate = *a.CertificationDate
	}
	body := a.CertificationBody
	if body == "" {
		body = DefaultCertificationBody
	}

	err := s.tx(ctx, func(ctx context.Context) error {
		for _, sid := range a.SpecialityIDs {
			if _, err := s.specialities.GetByID(ctx, sid); err != nil {
				return unknownID(err, "speciality_ids")
			}
			link := SpecialityLink{
				DoctorID:          doctorID,
				SpecialityID:      sid,
				IsPrimary:         a.PrimaryID != nil && *a.PrimaryID == sid,
				CertificationDate: certDate,
				CertificationBody: body,
			}
			if err := s.doctors.AttachSpeciality(ctx, link); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetDoctor(ctx, doctorID)
}

// ClinicAttachment assigns a doctor to clinics.
type ClinicAttachment struct {
	ClinicIDs []uuid.UUID
	StartDate *time.Time
	Status    string
}

func (s *Service) AttachClinics(ctx context.Context, doctorID uuid.UUID, a ClinicAttachment) (*Doctor, error) {
	if a.Status == "" {
		a.Status = AssignmentActive
	}
	v := response.NewValidationError()
	if len(a.ClinicIDs) == 0 {
		v.Add("clinic_ids", "The clinic ids field is required.")
	}
	switch a.Status {
	case AssignmentActive, AssignmentInactive, AssignmentSuspended:
	default:
		v.Add("status", "The selected status is invalid.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}

	start := s.today()
	if a.StartDate != nil {
		start = *a.StartDate
	}
	err := s.tx(ctx, func(ctx context.Context) error {
		for _, cid := range a.ClinicIDs {
			if _, err := s.clinics.GetByID(ctx, cid); err != nil {
				return unknownID(err, "clinic_ids")
			}
			if err := s.doctors.AttachClinic(ctx, ClinicLink{ClinicID: cid, DoctorID: doctorID, StartDate: start, Status: a.Status}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetDoctor(ctx, doctorID)
}

func validateDoctor(d *Doctor) error {
	v := response.NewValidationError()
	required(v, "first_name", d.FirstName)
	required(v, "last_name", d.LastName)
	required(v, "gmc_number", d.GMCNumber)
	if d.Email == "" {
		v.Add("email", "The email field is required.")
	} else if !validEmail(d.Email) {
		v.Add("email", "The email must be a valid email address.")
	}
	if len(d.GMCNumber) > 20 {
		v.Add("gmc_number", "The gmc number may not be greater than 20 characters.")
	}
	if d.Gender != nil {
		switch *d.Gender {
		case "male", "female", "other":
		default:
			v.Add("gender", "The selected gender is invalid.")
		}
	}
	if d.YearsOfExperience < 0 || d.YearsOfExperience > 50 {
		v.Add("years_of_experience", "The years of experience must be between 0 and 50.")
	}
	return v.Err()
}

func (s *Service) withSpecialities(ctx context.Context, doctors []*Doctor) error {
	if len(doctors) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(doctors))
	for i, d := range doctors {
		ids[i] = d.ID
	}
	byDoctor, err := s.doctors.SpecialitiesOf(ctx, ids)
	if err != nil {
		return err
	}
	for _, d := range doctors {
		d.Specialities = byDoctor[d.ID]
	}
	return nil
}

func (s *Service) today() time.Time {
	y, m, d := s.clock().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -- helpers --

func required(v *response.ValidationError, field, val string) {
	if strings.TrimSpace(val) == "" {
		v.Add(field, "The %s field is required.", strings.ReplaceAll(field, "_", " "))
	}
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// boundedInt applies def to zero and checks 1..hi otherwise.
func boundedInt(v *response.ValidationError, field string, val, def, hi int) int {
	if val == 0 {
		return def
	}
	if val < 1 || val > hi {
		v.Add(field, "The %s must be between 1 and %d.", field, hi)
	}
	return val
}

// unknownID reports a missing referenced row as a field error.
func unknownID(err error, field string) error {
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	v := response.NewValidationError()
	v.Add(field, "The selected %s is invalid.", field)
	return v.Err()
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
