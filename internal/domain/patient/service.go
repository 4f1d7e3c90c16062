package patient

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/myhomebp/myhomebp/internal/domain/bp"
	"github.com/myhomebp/myhomebp/internal/domain/clinic"
	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/db"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

var (
	ErrNotFound           = db.ErrNotFound
	ErrDuplicate          = db.ErrDuplicate
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Directory resolves the clinic and doctor a patient is registered with.
type Directory interface {
	GetClinic(ctx context.Context, id uuid.UUID) (*clinic.Clinic, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
}

// ReadingSummary is the slice of the blood pressure service the dashboard
// reads from.
type ReadingSummary interface {
	Latest(ctx context.Context, patientID uuid.UUID) (*bp.Reading, error)
	Readings(ctx context.Context, patientID uuid.UUID, days int, session *bp.Session) (*bp.ReadingsView, error)
}

type Service struct {
	patients  Repository
	clinical  ClinicalDataRepository
	directory Directory
	readings  ReadingSummary
	tokens    *auth.TokenIssuer
	clock     func() time.Time
}

func NewService(patients Repository, clinical ClinicalDataRepository, directory Directory, readings ReadingSummary, tokens *auth.TokenIssuer) *Service {
	return &Service{
		patients:  patients,
		clinical:  clinical,
		directory: directory,
		readings:  readings,
		tokens:    tokens,
		clock:     time.Now,
	}
}

func (s *Service) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Profile is a patient with the records they link to.
type Profile struct {
	*Patient
	Clinic       *clinic.Clinic `json:"clinic"`
	Doctor       *clinic.Doctor `json:"doctor"`
	ClinicalData *ClinicalData  `json:"clinical_data,omitempty"`
}

// AuthResult is returned by registration and login.
type AuthResult struct {
	Patient   *Profile  `json:"patient"`
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Registration is a new patient's sign-up form.
type Registration struct {
	FirstName            string
	Surname              string
	DateOfBirth          time.Time
	Address              string
	MobilePhone          string
	HomePhone            *string
	Email                string
	PIN                  string
	ClinicID             *uuid.UUID
	DoctorID             *uuid.UUID
	TermsAccepted        bool
	DataSharingConsent   bool
	NotificationsConsent bool
}

func (s *Service) Register(ctx context.Context, r Registration) (*AuthResult, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.MobilePhone = strings.TrimSpace(r.MobilePhone)

	v := response.NewValidationError()
	requiredMax(v, "first_name", r.FirstName, 255)
	requiredMax(v, "surname", r.Surname, 255)
	requiredMax(v, "address", r.Address, 1000)
	requiredMax(v, "mobile_phone", r.MobilePhone, 20)
	s.checkDateOfBirth(v, r.DateOfBirth)
	if r.HomePhone != nil && len(*r.HomePhone) > 20 {
		v.Add("home_phone", "The home phone may not be greater than 20 characters.")
	}
	checkEmail(v, r.Email)
	if !auth.ValidPIN(r.PIN) {
		v.Add("pin", "The pin must be exactly 4 digits.")
	}
	if r.ClinicID == nil {
		v.Add("clinic_id", "The clinic id field is required.")
	}
	if r.DoctorID == nil {
		v.Add("doctor_id", "The doctor id field is required.")
	}
	if !r.TermsAccepted {
		v.Add("terms_accepted", "The terms accepted must be accepted.")
	}
	if !r.DataSharingConsent {
		v.Add("data_sharing_consent", "The data sharing consent must be accepted.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if err := s.checkUnique(ctx, v, r.MobilePhone, r.Email, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, v, r.ClinicID, r.DoctorID); err != nil {
		return nil, err
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashSecret(r.PIN)
	if err != nil {
		return nil, err
	}
	email := r.Email
	p := &Patient{
		FirstName:            strings.TrimSpace(r.FirstName),
		Surname:              strings.TrimSpace(r.Surname),
		DateOfBirth:          r.DateOfBirth,
		Address:              strings.TrimSpace(r.Address),
		MobilePhone:          r.MobilePhone,
		HomePhone:            r.HomePhone,
		Email:                &email,
		PinHash:              hash,
		ClinicID:             r.ClinicID,
		DoctorID:             r.DoctorID,
		TermsAccepted:        r.TermsAccepted,
		DataSharingConsent:   r.DataSharingConsent,
		NotificationsConsent: r.NotificationsConsent,
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}
	return s.authResult(ctx, p)
}

// Login checks the PIN for the patient with the given mobile phone. An
// unknown phone and a wrong PIN both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, mobilePhone, pin string) (*AuthResult, error) {
	mobilePhone = strings.TrimSpace(mobilePhone)
	v := response.NewValidationError()
	if mobilePhone == "" {
		v.Add("mobile_phone", "The mobile phone field is required.")
	}
	if !auth.ValidPIN(pin) {
		v.Add("pin", "The pin must be exactly 4 digits.")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	p, err := s.patients.GetByMobilePhone(ctx, mobilePhone)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckSecret(p.PinHash, pin); err != nil {
		if errors.Is(err, auth.ErrMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.clock()
	if err := s.patients.TouchLastLogin(ctx, p.ID, now); err != nil {
		return nil, err
	}
	p.LastLoginAt = &now
	return s.authResult(ctx, p)
}

func (s *Service) authResult(ctx context.Context, p *Patient) (*AuthResult, error) {
	issued, err := s.tokens.Issue(p.ID.String(), auth.RolePatient)
	if err != nil {
		return nil, err
	}
	profile, err := s.profileOf(ctx, p, false)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		Patient:   profile,
		Token:     issued.Token,
		TokenType: issued.TokenType,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// Profile loads the patient with clinic, doctor and clinical data.
func (s *Service) Profile(ctx context.Context, patientID uuid.UUID) (*Profile, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.profileOf(ctx, p, true)
}

func (s *Service) profileOf(ctx context.Context, p *Patient, withClinical bool) (*Profile, error) {
	out := &Profile{Patient: p}
	var err error
	if p.ClinicID != nil {
		if out.Clinic, err = s.directory.GetClinic(ctx, *p.ClinicID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if p.DoctorID != nil {
		if out.Doctor, err = s.directory.GetDoctor(ctx, *p.DoctorID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if withClinical {
		if out.ClinicalData, err = s.ClinicalData(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ProfileUpdate carries the fields a patient may change. Nil fields are
// left alone.
type ProfileUpdate struct {
	FirstName            *string
	Surname              *string
	DateOfBirth          *time.Time
	Address              *string
	MobilePhone          *string
	HomePhone            *string
	Email                *string
	ClinicID             *uuid.UUID
	NotificationsConsent *bool
}

func (s *Service) UpdateProfile(ctx context.Context, patientID uuid.UUID, u ProfileUpdate) (*Profile, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	v := response.NewValidationError()
	if u.FirstName != nil {
		requiredMax(v, "first_name", *u.FirstName, 255)
		p.FirstName = strings.TrimSpace(*u.FirstName)
	}
	if u.Surname != nil {
		requiredMax(v, "surname", *u.Surname, 255)
		p.Surname = strings.TrimSpace(*u.Surname)
	}
	if u.DateOfBirth != nil {
		s.checkDateOfBirth(v, *u.DateOfBirth)
		p.DateOfBirth = *u.DateOfBirth
	}
	if u.Address != nil {
		requiredMax(v, "address", *u.Address, 1000)
		p.Address = strings.TrimSpace(*u.Address)
	}
	phone := ""
	if u.MobilePhone != nil {
		phone = strings.TrimSpace(*u.MobilePhone)
		requiredMax(v, "mobile_phone", phone, 20)
		p.MobilePhone = phone
	}
	if u.HomePhone != nil {
		if len(*u.HomePhone) > 20 {
			v.Add("home_phone", "The home phone may not be greater than 20 characters.")
		}
		p.HomePhone = u.HomePhone
	}
	email := ""
	if u.Email != nil {
		email = strings.TrimSpace(*u.Email)
		checkEmail(v, email)
		p.Email = &email
	}
	if u.ClinicID != nil {
		p.ClinicID = u.ClinicID
	}
	if u.NotificationsConsent != nil {
		p.NotificationsConsent = *u.NotificationsConsent
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if err := s.checkUnique(ctx, v, phone, email, p.ID); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, v, u.ClinicID, nil); err != nil {
		return nil, err
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return s.profileOf(ctx, p, false)
}

// ClinicalData returns the patient's clinical data, or nil when none has
// been saved.
func (s *Service) ClinicalData(ctx context.Context, patientID uuid.UUID) (*ClinicalData, error) {
	c, err := s.clinical.GetByPatient(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ClinicalInput carries submitted clinical fields. Nil fields keep their
// stored value.
type ClinicalInput struct {
	HeightCM                    *float64
	WeightKG                    *float64
	EthnicityCode               *string
	EthnicityDescription        *string
	SmokingStatus               *string
	LastBloodTestDate           *time.Time
	UrineProteinCreatinineRatio *float64
	Comorbidities               []string
	HypertensionDiagnosis       *string
	Medications                 []Medication
}

// SaveClinicalData merges in onto the stored record, derives BMI and
// stores the result. A "no" hypertension diagnosis clears medications.
func (s *Service) SaveClinicalData(ctx context.Context, patientID uuid.UUID, in ClinicalInput) (*ClinicalData, error) {
	if err := s.validateClinical(in); err != nil {
		return nil, err
	}

	c, err := s.ClinicalData(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = &ClinicalData{PatientID: patientID}
	}

	if in.HeightCM != nil {
		c.HeightCM = in.HeightCM
	}
	if in.WeightKG != nil {
		c.WeightKG = in.WeightKG
	}
	if in.EthnicityCode != nil {
		c.EthnicityCode = in.EthnicityCode
	}
	if in.EthnicityDescription != nil {
		c.EthnicityDescription = in.EthnicityDescription
	}
	if in.SmokingStatus != nil {
		c.SmokingStatus = in.SmokingStatus
	}
	if in.LastBloodTestDate != nil {
		c.LastBloodTestDate = in.LastBloodTestDate
	}
	if in.UrineProteinCreatinineRatio != nil {
		c.UrineProteinCreatinineRatio = in.UrineProteinCreatinineRatio
	}
	if in.Comorbidities != nil {
		c.Comorbidities = in.Comorbidities
	}
	if in.HypertensionDiagnosis != nil {
		c.HypertensionDiagnosis = in.HypertensionDiagnosis
	}
	if in.Medications != nil {
		c.Medications = in.Medications
	}
	if c.HypertensionDiagnosis != nil && *c.HypertensionDiagnosis == DiagnosisNo {
		c.Medications = []Medication{}
	}
	c.Derive()

	if err := s.clinical.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) validateClinical(in ClinicalInput) error {
	v := response.NewValidationError()
	floatRange(v, "height_cm", in.HeightCM, 50, 300)
	floatRange(v, "weight_kg", in.WeightKG, 10, 500)
	floatRange(v, "urine_protein_creatinine_ratio", in.UrineProteinCreatinineRatio, 0, 1000)
	if in.EthnicityCode != nil && len(*in.EthnicityCode) > 10 {
		v.Add("ethnicity_code", "The ethnicity code may not be greater than 10 characters.")
	}
	if in.EthnicityDescription != nil && len(*in.EthnicityDescription) > 255 {
		v.Add("ethnicity_description", "The ethnicity description may not be greater than 255 characters.")
	}
	if in.SmokingStatus != nil {
		switch *in.SmokingStatus {
		case SmokingNever, SmokingCurrent, SmokingEx, SmokingVaping, SmokingOccasional:
		default:
			v.Add("smoking_status", "The selected smoking status is invalid.")
		}
	}
	if in.LastBloodTestDate != nil && !s.beforeToday(*in.LastBloodTestDate) {
		v.Add("last_blood_test_date", "The last blood test date must be a date before today.")
	}
	for _, code := range in.Comorbidities {
		if _, ok := Comorbidities[code]; !ok {
			v.Add("comorbidities", "The selected comorbidity %q is invalid.", code)
		}
	}

	yes := false
	if in.HypertensionDiagnosis != nil {
		switch *in.HypertensionDiagnosis {
		case DiagnosisYes:
			yes = true
		case DiagnosisNo, DiagnosisDontKnow:
		default:
			v.Add("hypertension_diagnosis", "The selected hypertension diagnosis is invalid.")
		}
	}
	if yes && len(in.Medications) == 0 {
		v.Add("medications", "The medications field is required when hypertension diagnosis is yes.")
	}
	for i, m := range in.Medications {
		checkMedication(v, i, m, yes)
	}
	return v.Err()
}

func checkMedication(v *response.ValidationError, i int, m Medication, required bool) {
	fields := []struct {
		name, val string
		limit     int
	}{
		{"bnf_code", m.BNFCode, 15},
		{"dose", m.Dose, 50},
		{"frequency", m.Frequency, 50},
	}
	for _, f := range fields {
		key := "medications." + strconv.Itoa(i) + "." + f.name
		if required && strings.TrimSpace(f.val) == "" {
			v.Add(key, "The %s field is required when hypertension diagnosis is yes.", key)
		}
		if len(f.val) > f.limit {
			v.Add(key, "The %s may not be greater than %d characters.", key, f.limit)
		}
	}
}

// Dashboard is the patient's home screen.
type Dashboard struct {
	Patient         *Profile     `json:"patient"`
	LastReading     *bp.Reading  `json:"last_reading"`
	RecentReadings  []bp.Reading `json:"recent_readings"`
	SevenDayAverage *bp.Average  `json:"seven_day_average"`
}

func (s *Service) Dashboard(ctx context.Context, patientID uuid.UUID) (*Dashboard, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profileOf(ctx, p, false)
	if err != nil {
		return nil, err
	}

	last, err := s.readings.Latest(ctx, patientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	view, err := s.readings.Readings(ctx, patientID, bp.DefaultDays, nil)
	if err != nil {
		return nil, err
	}
	recent := view.Readings
	if recent == nil {
		recent = []bp.Reading{}
	}
	return &Dashboard{
		Patient:         profile,
		LastReading:     last,
		RecentReadings:  recent,
		SevenDayAverage: view.SevenDayAverage,
	}, nil
}

// -- helpers --

func (s *Service) checkUnique(ctx context.Context, v *response.ValidationError, phone, email string, exclude uuid.UUID) error {
	if phone != "" {
		taken, err := s.patients.ExistsByMobilePhone(ctx, phone, exclude)
		if err != nil {
			return err
		}
		if taken {
			v.Add("mobile_phone", "The mobile phone has already been taken.")
		}
	}
	if email != "" {
		taken, err := s.patients.ExistsByEmail(ctx, email, exclude)
		if err != nil {
			return err
		}
		if taken {
			v.Add("email", "The email has already been taken.")
		}
	}
	return nil
}

func (s *Service) checkReferences(ctx context.Context, v *response.ValidationError, clinicID, doctorID *uuid.UUID) error {
	if clinicID != nil {
		if _, err := s.directory.GetClinic(ctx, *clinicID); errors.Is(err, ErrNotFound) {
			v.Add("clinic_id", "The selected clinic id is invalid.")
		} else if err != nil {
			return err
		}
	}
	if doctorID != nil {
		if _, err := s.directory.GetDoctor(ctx, *doctorID); errors.Is(err, ErrNotFound) {
			v.Add("doctor_id", "The selected doctor id is invalid.")
		} else if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) checkDateOfBirth(v *response.ValidationError, dob time.Time) {
	switch {
	case dob.IsZero():
		v.Add("date_of_birth", "The date of birth field is required.")
	case !s.beforeToday(dob):
		v.Add("date_of_birth", "The date of birth must be a date before today.")
	}
}

// beforeToday compares calendar dates in UTC.
func (s *Service) beforeToday(t time.Time) bool {
	return t.UTC().Format("2006-01-02") < s.clock().UTC().Format("2006-01-02")
}

func requiredMax(v *response.ValidationError, field, val string, limit int) {
	label := strings.ReplaceAll(field, "_", " ")
	switch {
	case strings.TrimSpace(val) == "":
		v.Add(field, "The %s field is required.", label)
	case len(val) > limit:
		v.Add(field, "The %s may not be greater than %d characters.", label, limit)
	}
}

func checkEmail(v *response.ValidationError, email string) {
	if email == "" {
		v.Add("email", "The email field is required.")
		return
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 255 {
		v.Add("email", "The email must be a valid email address.")
	}
}

func floatRange(v *response.ValidationError, field string, val *float64, lo, hi float64) {
	if val != nil && (*val < lo || *val > hi) {
		v.Add(field, "The %s must be between %g and %g.", strings.ReplaceAll(field, "_", " "), lo, hi)
	}
}
