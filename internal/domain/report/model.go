package report

import (
	"time"

	"github.com/google/uuid"
)

// MinReadings is how many readings a period needs before a report can be
// generated.
const MinReadings = 4

// ContentType is the MIME type of a stored report workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const dateLayout = "2006-01-02"

// Report maps to the bp_report table. Content is the XLSX workbook and is
// only loaded for downloads.
type Report struct {
	ID               uuid.UUID `db:"id" json:"id"`
	PatientID        uuid.UUID `db:"patient_id" json:"patient_id"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	GeneratedAt      time.Time `db:"generated_at" json:"generated_at"`
	TotalReadings    int       `db:"total_readings" json:"total_readings"`
	AverageSystolic  *int      `db:"average_systolic" json:"average_systolic"`
	AverageDiastolic *int      `db:"average_diastolic" json:"average_diastolic"`
	ComplianceStatus string    `db:"compliance_status" json:"compliance_status"`
	Filename         string    `db:"filename" json:"filename"`
	Content          []byte    `db:"content" json:"-"`
	EmailSent        bool      `db:"email_sent" json:"email_sent"`
	DownloadURL      string    `db:"-" json:"download_url"`
}

// Period is the date range a report or summary covers.
type Period struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

func newPeriod(start, end time.Time, days int) Period {
	return Period{StartDate: start.Format(dateLayout), EndDate: end.Format(dateLayout), Days: days}
}
