package bp

import (
	"time"

	"github.com/google/uuid"
)

// Session is the time-of-day slot a reading was taken in.
type Session string

const (
	SessionAM Session = "am"
	SessionPM Session = "pm"
)

// Valid reports whether s is one of the known sessions.
func (s Session) Valid() bool {
	return s == SessionAM || s == SessionPM
}

// Category is the NICE blood pressure band. The string values are consumed
// verbatim by report rendering and must not change.
type Category string

const (
	CategoryHypertensiveCrisis Category = "Hypertensive Crisis"
	CategoryStage2             Category = "Stage 2 Hypertension"
	CategoryStage1             Category = "Stage 1 Hypertension"
	CategoryHighNormal         Category = "High Normal"
	CategoryNormal             Category = "Normal"
	CategoryOptimal            Category = "Optimal"
)

// Triple is one systolic/diastolic/pulse measurement.
type Triple struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
	Pulse     int `json:"pulse"`
}

// Submission is a patient's reading as entered, before classification.
type Submission struct {
	ReadingDate time.Time
	SessionType Session
	Reading1    Triple
	Reading2    Triple
	Reading3    *Triple
}

// Reading maps to the blood_pressure_reading table.
type Reading struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	PatientID            uuid.UUID `db:"patient_id" json:"patient_id"`
	ReadingDate          time.Time `db:"reading_date" json:"reading_date"`
	SessionType          Session   `db:"session_type" json:"session_type"`
	Reading1Systolic     int       `db:"reading_1_systolic" json:"reading_1_systolic"`
	Reading1Diastolic    int       `db:"reading_1_diastolic" json:"reading_1_diastolic"`
	Reading1Pulse        int       `db:"reading_1_pulse" json:"reading_1_pulse"`
	Reading2Systolic     int       `db:"reading_2_systolic" json:"reading_2_systolic"`
	Reading2Diastolic    int       `db:"reading_2_diastolic" json:"reading_2_diastolic"`
	Reading2Pulse        int       `db:"reading_2_pulse" json:"reading_2_pulse"`
	Reading3Systolic     *int      `db:"reading_3_systolic" json:"reading_3_systolic"`
	Reading3Diastolic    *int      `db:"reading_3_diastolic" json:"reading_3_diastolic"`
	Reading3Pulse        *int      `db:"reading_3_pulse" json:"reading_3_pulse"`
	AverageSystolic      int       `db:"average_systolic" json:"average_systolic"`
	AverageDiastolic     int       `db:"average_diastolic" json:"average_diastolic"`
	AveragePulse         int       `db:"average_pulse" json:"average_pulse"`
	ReadingCategory      Category  `db:"reading_category" json:"reading_category"`
	IsHighReading        bool      `db:"is_high_reading" json:"is_high_reading"`
	RequiresUrgentAdvice bool      `db:"requires_urgent_advice" json:"requires_urgent_advice"`
	SystemResponse       string    `db:"system_response" json:"system_response"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// NewReading builds an unsaved reading from a submission and its classification.
func NewReading(patientID uuid.UUID, sub Submission, c Classification) *Reading {
	r := &Reading{
		PatientID:         patientID,
		ReadingDate:       sub.ReadingDate,
		SessionType:       sub.SessionType,
		Reading1Systolic:  sub.Reading1.Systolic,
		Reading1Diastolic: sub.Reading1.Diastolic,
		Reading1Pulse:     sub.Reading1.Pulse,
		Reading2Systolic:  sub.Reading2.Systolic,
		Reading2Diastolic: sub.Reading2.Diastolic,
		Reading2Pulse:     sub.Reading2.Pulse,
	}
	r.SetThird(sub.Reading3)
	r.Apply(c)
	return r
}

// Third returns the optional third triple, or nil when it was never taken.
func (r *Reading) Third() *Triple {
	if r.Reading3Systolic == nil || r.Reading3Diastolic == nil || r.Reading3Pulse == nil {
		return nil
	}
	return &Triple{Systolic: *r.Reading3Systolic, Diastolic: *r.Reading3Diastolic, Pulse: *r.Reading3Pulse}
}

// SetThird stores t as the third triple; nil clears it.
func (r *Reading) SetThird(t *Triple) {
	if t == nil {
		r.Reading3Systolic, r.Reading3Diastolic, r.Reading3Pulse = nil, nil, nil
		return
	}
	sys, dia, pulse := t.Systolic, t.Diastolic, t.Pulse
	r.Reading3Systolic, r.Reading3Diastolic, r.Reading3Pulse = &sys, &dia, &pulse
}

// Submission reconstructs the raw submission a stored reading came from.
func (r *Reading) Submission() Submission {
	return Submission{
		ReadingDate: r.ReadingDate,
		SessionType: r.SessionType,
		Reading1:    Triple{Systolic: r.Reading1Systolic, Diastolic: r.Reading1Diastolic, Pulse: r.Reading1Pulse},
		Reading2:    Triple{Systolic: r.Reading2Systolic, Diastolic: r.Reading2Diastolic, Pulse: r.Reading2Pulse},
		Reading3:    r.Third(),
	}
}

// Apply copies the derived fields of a classification onto the reading.
func (r *Reading) Apply(c Classification) {
	r.AverageSystolic = c.AverageSystolic
	r.AverageDiastolic = c.AverageDiastolic
	r.AveragePulse = c.AveragePulse
	r.ReadingCategory = c.Category
	r.IsHighReading = c.IsHigh
	r.RequiresUrgentAdvice = c.RequiresUrgent
	r.SystemResponse = c.Response
}

// Average is a rolling mean over a set of readings. It is recomputed on every
// request and never stored.
type Average struct {
	Systolic         int `json:"systolic"`
	Diastolic        int `json:"diastolic"`
	Pulse            int `json:"pulse"`
	TotalReadings    int `json:"total_readings"`
	DaysWithReadings int `json:"days_with_readings"`
}

// ReadingSnapshot is the report view of a single reading.
type ReadingSnapshot struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	Systolic    int       `json:"systolic"`
	Diastolic   int       `json:"diastolic"`
	Pulse       int       `json:"pulse"`
	SessionType Session   `json:"session_type"`
}

// Compliance statuses for a reporting period.
const (
	ComplianceExcellent        = "excellent"
	ComplianceGood             = "good"
	ComplianceFair             = "fair"
	CompliancePoor             = "poor"
	ComplianceInsufficientData = "insufficient_data"
)

// ReportSummary aggregates a patient's readings over a date range.
type ReportSummary struct {
	TotalReadings           int              `json:"total_readings"`
	DaysWithReadings        int              `json:"days_with_readings"`
	OverallAverage          *Average         `json:"overall_average"`
	AMAverage               *Average         `json:"am_average"`
	PMAverage               *Average         `json:"pm_average"`
	HighestReading          *ReadingSnapshot `json:"highest_reading"`
	LowestReading           *ReadingSnapshot `json:"lowest_reading"`
	HighReadingsCount       int              `json:"high_readings_count"`
	UrgentReadingsCount     int              `json:"urgent_readings_count"`
	ComplianceStatus        string           `json:"compliance_status"`
	CompliancePercentage    float64          `json:"compliance_percentage"`
	NICEGuidelinesCompliant bool             `json:"nice_guidelines_compliant"`
}

// TrendPoint is one day of readings collapsed to its means.
type TrendPoint struct {
	Date          string `json:"date"`
	Systolic      int    `json:"systolic"`
	Diastolic     int    `json:"diastolic"`
	Pulse         int    `json:"pulse"`
	ReadingsCount int    `json:"readings_count"`
}
