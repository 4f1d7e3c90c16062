package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhomebp/myhomebp/internal/platform/db"
)

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientColumns = `id, first_name, surname, date_of_birth, address, mobile_phone,
	home_phone, email, pin_hash, clinic_id, doctor_id, terms_accepted,
	data_sharing_consent, notifications_consent, last_login_at, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (
			id, first_name, surname, date_of_birth, address, mobile_phone,
			home_phone, email, pin_hash, clinic_id, doctor_id, terms_accepted,
			data_sharing_consent, notifications_consent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.Surname, p.DateOfBirth, p.Address, p.MobilePhone,
		p.HomePhone, p.Email, p.PinHash, p.ClinicID, p.DoctorID, p.TermsAccepted,
		p.DataSharingConsent, p.NotificationsConsent,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Translate("create patient", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patient WHERE id = $1`, id))
	return p, db.Translate("get patient", err)
}

func (r *patientRepoPG) GetByMobilePhone(ctx context.Context, phone string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientColumns+` FROM patient WHERE mobile_phone = $1`, phone))
	return p, db.Translate("get patient by phone", err)
}

func (r *patientRepoPG) ExistsByMobilePhone(ctx context.Context, phone string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient WHERE mobile_phone = $1 AND id <> $2)`, phone, exclude,
	).Scan(&exists)
	return exists, db.Translate("check patient phone", err)
}

func (r *patientRepoPG) ExistsByEmail(ctx context.Context, email string, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient WHERE lower(email) = lower($1) AND id <> $2)`, email, exclude,
	).Scan(&exists)
	return exists, db.Translate("check patient email", err)
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET
			first_name = $2, surname = $3, date_of_birth = $4, address = $5,
			mobile_phone = $6, home_phone = $7, email = $8, clinic_id = $9,
			doctor_id = $10, notifications_consent = $11, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.Surname, p.DateOfBirth, p.Address,
		p.MobilePhone, p.HomePhone, p.Email, p.ClinicID,
		p.DoctorID, p.NotificationsConsent,
	).Scan(&p.UpdatedAt)
	return db.Translate("update patient", err)
}

func (r *patientRepoPG) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patient SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return db.Translate("touch last login", err)
	}
	return db.RequireAffected("touch last login", tag)
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.FirstName, &p.Surname, &p.DateOfBirth, &p.Address, &p.MobilePhone,
		&p.HomePhone, &p.Email, &p.PinHash, &p.ClinicID, &p.DoctorID, &p.TermsAccepted,
		&p.DataSharingConsent, &p.NotificationsConsent, &p.LastLoginAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Clinical Data Repository --

type clinicalRepoPG struct {
	pool *pgxpool.Pool
}

func NewClinicalDataRepository(pool *pgxpool.Pool) ClinicalDataRepository {
	return &clinicalRepoPG{pool: pool}
}

func (r *clinicalRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const clinicalColumns = `id, patient_id, height_cm, weight_kg, bmi, ethnicity_code,
	ethnicity_description, smoking_status, last_blood_test_date,
	urine_protein_creatinine_ratio, comorbidities, hypertension_diagnosis,
	medications, created_at, updated_at`

func (r *clinicalRepoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*ClinicalData, error) {
	c, err := scanClinicalData(r.conn(ctx).QueryRow(ctx,
		`SELECT `+clinicalColumns+` FROM clinical_data WHERE patient_id = $1`, patientID))
	return c, db.Translate("get clinical data", err)
}

func (r *clinicalRepoPG) Upsert(ctx context.Context, c *ClinicalData) error {
	if c.Comorbidities == nil {
		c.Comorbidities = []string{}
	}
	if c.Medications == nil {
		c.Medications = []Medication{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_data (
			id, patient_id, height_cm, weight_kg, bmi, ethnicity_code,
			ethnicity_description, smoking_status, last_blood_test_date,
			urine_protein_creatinine_ratio, comorbidities, hypertension_diagnosis, medications
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (patient_id) DO UPDATE SET
			height_cm = EXCLUDED.height_cm,
			weight_kg = EXCLUDED.weight_kg,
			bmi = EXCLUDED.bmi,
			ethnicity_code = EXCLUDED.ethnicity_code,
			ethnicity_description = EXCLUDED.ethnicity_description,
			smoking_status = EXCLUDED.smoking_status,
			last_blood_test_date = EXCLUDED.last_blood_test_date,
			urine_protein_creatinine_ratio = EXCLUDED.urine_protein_creatinine_ratio,
			comorbidities = EXCLUDED.comorbidities,
			hypertension_diagnosis = EXCLUDED.hypertension_diagnosis,
			medications = EXCLUDED.medications,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`,
		uuid.New(), c.PatientID, c.HeightCM, c.WeightKG, c.BMI, c.EthnicityCode,
		c.EthnicityDescription, c.SmokingStatus, c.LastBloodTestDate,
		c.UrineProteinCreatinineRatio, c.Comorbidities, c.HypertensionDiagnosis, c.Medications,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return db.Translate("upsert clinical data", err)
}

func scanClinicalData(row pgx.Row) (*ClinicalData, error) {
	var c ClinicalData
	err := row.Scan(
		&c.ID, &c.PatientID, &c.HeightCM, &c.WeightKG, &c.BMI, &c.EthnicityCode,
		&c.EthnicityDescription, &c.SmokingStatus, &c.LastBloodTestDate,
		&c.UrineProteinCreatinineRatio, &c.Comorbidities, &c.HypertensionDiagnosis,
		&c.Medications, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.BMICategory = BMICategory(c.BMI)
	return &c, nil
}
