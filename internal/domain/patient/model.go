package patient

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patient maps to the patient table.
type Patient struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	FirstName            string     `db:"first_name" json:"first_name"`
	Surname              string     `db:"surname" json:"surname"`
	DateOfBirth          time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Address              string     `db:"address" json:"address"`
	MobilePhone          string     `db:"mobile_phone" json:"mobile_phone"`
	HomePhone            *string    `db:"home_phone" json:"home_phone"`
	Email                *string    `db:"email" json:"email"`
	PinHash              string     `db:"pin_hash" json:"-"`
	ClinicID             *uuid.UUID `db:"clinic_id" json:"clinic_id"`
	DoctorID             *uuid.UUID `db:"doctor_id" json:"doctor_id"`
	TermsAccepted        bool       `db:"terms_accepted" json:"terms_accepted"`
	DataSharingConsent   bool       `db:"data_sharing_consent" json:"data_sharing_consent"`
	NotificationsConsent bool       `db:"notifications_consent" json:"notifications_consent"`
	LastLoginAt          *time.Time `db:"last_login_at" json:"last_login_at"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName is the patient's display name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.Surname
}

// Smoking statuses.
const (
	SmokingNever      = "never_smoked"
	SmokingCurrent    = "current_smoker"
	SmokingEx         = "ex_smoker"
	SmokingVaping     = "vaping"
	SmokingOccasional = "occasional_smoker"
)

// Hypertension diagnosis answers.
const (
	DiagnosisYes      = "yes"
	DiagnosisNo       = "no"
	DiagnosisDontKnow = "dont_know"
)

// Comorbidities lists the accepted comorbidity codes with their labels.
var Comorbidities = map[string]string{
	"stroke":                     "Stroke",
	"diabetes_type_1":            "Diabetes Mellitus (Type 1)",
	"diabetes_type_2":            "Diabetes Mellitus (Type 2)",
	"atrial_fibrillation":        "Atrial Fibrillation",
	"transient_ischaemic_attack": "Transient Ischaemic Attack",
	"chronic_kidney_disease":     "Chronic Kidney Disease",
	"others":                     "Others",
}

// Medication is one entry of a patient's medication list.
type Medication struct {
	BNFCode   string `json:"bnf_code"`
	Dose      string `json:"dose"`
	Frequency string `json:"frequency"`
}

// ClinicalData maps to the clinical_data table. There is at most one row
// per patient.
type ClinicalData struct {
	ID                          uuid.UUID    `db:"id" json:"id"`
	PatientID                   uuid.UUID    `db:"patient_id" json:"patient_id"`
	HeightCM                    *float64     `db:"height_cm" json:"height_cm"`
	WeightKG                    *float64     `db:"weight_kg" json:"weight_kg"`
	BMI                         *float64     `db:"bmi" json:"bmi"`
	BMICategory                 string       `db:"-" json:"bmi_category"`
	EthnicityCode               *string      `db:"ethnicity_code" json:"ethnicity_code"`
	EthnicityDescription        *string      `db:"ethnicity_description" json:"ethnicity_description"`
	SmokingStatus               *string      `db:"smoking_status" json:"smoking_status"`
	LastBloodTestDate           *time.Time   `db:"last_blood_test_date" json:"last_blood_test_date"`
	UrineProteinCreatinineRatio *float64     `db:"urine_protein_creatinine_ratio" json:"urine_protein_creatinine_ratio"`
	Comorbidities               []string     `db:"comorbidities" json:"comorbidities"`
	HypertensionDiagnosis       *string      `db:"hypertension_diagnosis" json:"hypertension_diagnosis"`
	Medications                 []Medication `db:"medications" json:"medications"`
	CreatedAt                   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt                   time.Time    `db:"updated_at" json:"updated_at"`
}

// Derive recomputes BMI from height and weight when both are present and
// refreshes the category.
func (c *ClinicalData) Derive() {
	if c.HeightCM != nil && c.WeightKG != nil {
		c.BMI = CalculateBMI(*c.HeightCM, *c.WeightKG)
	}
	c.BMICategory = BMICategory(c.BMI)
}

// CalculateBMI returns weight / height² rounded half-up to one decimal
// place, or nil when height is not positive.
func CalculateBMI(heightCM, weightKG float64) *float64 {
	if heightCM <= 0 {
		return nil
	}
	metres := decimal.NewFromFloat(heightCM).Div(decimal.NewFromInt(100))
	bmi := decimal.NewFromFloat(weightKG).
		Div(metres.Mul(metres)).
		Round(1).
		InexactFloat64()
	return &bmi
}

// BMI categories.
const (
	BMIUnknown     = "Unknown"
	BMIUnderweight = "Underweight"
	BMINormal      = "Normal"
	BMIOverweight  = "Overweight"
	BMIObese       = "Obese"
)

func BMICategory(bmi *float64) string {
	switch {
	case bmi == nil || *bmi == 0:
		return BMIUnknown
	case *bmi < 18.5:
		return BMIUnderweight
	case *bmi < 25:
		return BMINormal
	case *bmi < 30:
		return BMIOverweight
	default:
		return BMIObese
	}
}
