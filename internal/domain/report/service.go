package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/myhomebp/myhomebp/internal/domain/bp"
	"github.com/myhomebp/myhomebp/internal/domain/patient"
	"github.com/myhomebp/myhomebp/internal/platform/db"
	"github.com/myhomebp/myhomebp/internal/platform/notification"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

const (
	defaultDays = 7
	maxDays     = 365
)

var ErrNotFound = db.ErrNotFound

// InsufficientReadingsError is returned when a period holds fewer than
// MinReadings readings.
type InsufficientReadingsError struct {
	Count int
}

func (e *InsufficientReadingsError) Error() string {
	return fmt.Sprintf("insufficient readings: have %d, need %d", e.Count, MinReadings)
}

// Readings is the slice of the blood pressure service reports are built from.
type Readings interface {
	ListRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]bp.Reading, error)
	Now() time.Time
}

// Profiles loads the patient a report is for.
type Profiles interface {
	Profile(ctx context.Context, patientID uuid.UUID) (*patient.Profile, error)
}

// Mailer delivers a rendered template with attachments.
type Mailer interface {
	SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string, attachments ...notification.Attachment) (*notification.Notification, error)
}

type Service struct {
	reports  Repository
	readings Readings
	profiles Profiles
	mailer   Mailer
	logger   zerolog.Logger
	basePath string
}

func NewService(reports Repository, readings Readings, profiles Profiles, mailer Mailer) *Service {
	return &Service{
		reports:  reports,
		readings: readings,
		profiles: profiles,
		mailer:   mailer,
		logger:   zerolog.Nop(),
		basePath: "/api/v1",
	}
}

func (s *Service) SetLogger(logger zerolog.Logger) { s.logger = logger }

// SetBasePath sets the API prefix used to build download URLs.
func (s *Service) SetBasePath(p string) { s.basePath = p }

// GenerateRequest selects the period and options of a new report. Nil dates
// default to the last seven days.
type GenerateRequest struct {
	StartDate           *time.Time
	EndDate             *time.Time
	IncludeClinicalData bool
	EmailToClinic       bool
}

// GenerateResult is a stored report with the summary it was built from.
type GenerateResult struct {
	Report    *Report          `json:"report"`
	Summary   bp.ReportSummary `json:"summary"`
	EmailSent bool             `json:"email_sent"`
	Period    Period           `json:"period"`
}

// Generate summarizes the period, renders and stores the workbook and, when
// asked, emails it to the patient's clinic. A failed email is logged and
// leaves EmailSent false.
func (s *Service) Generate(ctx context.Context, patientID uuid.UUID, req GenerateRequest) (*GenerateResult, error) {
	start, end, err := s.period(req)
	if err != nil {
		return nil, err
	}

	from, to := dayBounds(start, end)
	readings, err := s.readings.ListRange(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	if len(readings) < MinReadings {
		return nil, &InsufficientReadingsError{Count: len(readings)}
	}

	profile, err := s.profiles.Profile(ctx, patientID)
	if err != nil {
		return nil, err
	}

	summary := bp.Summarize(readings, start, end)
	data := WorkbookData{
		Patient:     profile.Patient,
		Start:       start,
		End:         end,
		GeneratedAt: s.readings.Now(),
		Readings:    readings,
		Summary:     summary,
	}
	if profile.Clinic != nil {
		data.ClinicName = profile.Clinic.Name
	}
	if req.IncludeClinicalData {
		data.Clinical = profile.ClinicalData
	}
	content, err := BuildWorkbook(data)
	if err != nil {
		return nil, fmt.Errorf("build report workbook: %w", err)
	}

	rp := &Report{
		PatientID:        patientID,
		StartDate:        start,
		EndDate:          end,
		TotalReadings:    summary.TotalReadings,
		ComplianceStatus: summary.ComplianceStatus,
		Filename:         filename(patientID, start, end),
		Content:          content,
	}
	if avg := summary.OverallAverage; avg != nil {
		sys, dia := avg.Systolic, avg.Diastolic
		rp.AverageSystolic, rp.AverageDiastolic = &sys, &dia
	}
	if err := s.reports.Create(ctx, rp); err != nil {
		return nil, err
	}
	s.withURL(rp)

	if req.EmailToClinic {
		rp.EmailSent = s.emailClinic(ctx, profile, rp, summary)
	}

	return &GenerateResult{
		Report:    rp,
		Summary:   summary,
		EmailSent: rp.EmailSent,
		Period:    newPeriod(start, end, bp.ExpectedDays(start, end)),
	}, nil
}

func (s *Service) period(req GenerateRequest) (start, end time.Time, err error) {
	today := truncateDay(s.readings.Now())
	end, start = today, today.AddDate(0, 0, -defaultDays)
	if req.EndDate != nil {
		end = truncateDay(req.EndDate.In(today.Location()))
	}
	if req.StartDate != nil {
		start = truncateDay(req.StartDate.In(today.Location()))
	}

	v := response.NewValidationError()
	if start.After(today) {
		v.Add("start_date", "The start date must be a date before or equal to today.")
	}
	if end.Before(start) {
		v.Add("end_date", "The end date must be a date after or equal to start date.")
	}
	if end.After(today) {
		v.Add("end_date", "The end date must be a date before or equal to today.")
	}
	return start, end, v.Err()
}

func (s *Service) emailClinic(ctx context.Context, profile *patient.Profile, rp *Report, summary bp.ReportSummary) bool {
	if profile.Clinic == nil || profile.Clinic.Email == nil || *profile.Clinic.Email == "" {
		return false
	}
	p := profile.Patient
	data := map[string]string{
		"patient_name":       p.FullName(),
		"clinic_name":        profile.Clinic.Name,
		"date_of_birth":      p.DateOfBirth.Format(dateLayout),
		"start_date":         rp.StartDate.Format(dateLayout),
		"end_date":           rp.EndDate.Format(dateLayout),
		"average":            formatAverage(summary.OverallAverage),
		"total_readings":     fmt.Sprint(summary.TotalReadings),
		"days_with_readings": fmt.Sprint(summary.DaysWithReadings),
		"compliance_status":  summary.ComplianceStatus,
	}
	attachment := notification.Attachment{
		Filename:    fmt.Sprintf("BP_Report_%s_%s.xlsx", p.Surname, p.FirstName),
		ContentType: ContentType,
		Content:     rp.Content,
		Ref:         rp.ID.String(),
	}

	if _, err := s.mailer.SendTemplate(ctx, notification.TemplateBPReport, data, *profile.Clinic.Email, attachment); err != nil {
		s.logger.Error().Err(err).
			Str("report_id", rp.ID.String()).
			Str("clinic_id", profile.Clinic.ID.String()).
			Msg("failed to send report email")
		return false
	}
	if err := s.reports.MarkEmailed(ctx, rp.ID); err != nil {
		s.logger.Error().Err(err).Str("report_id", rp.ID.String()).Msg("failed to record report email")
	}
	return true
}

// LoadAttachment reloads a stored report for a mail retry. ref is the
// report id set on the attachment by emailClinic.
func (s *Service) LoadAttachment(ctx context.Context, ref string) (notification.Attachment, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return notification.Attachment{}, fmt.Errorf("invalid report ref %q: %w", ref, err)
	}
	rp, err := s.reports.GetFile(ctx, id)
	if err != nil {
		return notification.Attachment{}, err
	}
	return notification.Attachment{
		Filename:    rp.Filename,
		ContentType: ContentType,
		Content:     rp.Content,
		Ref:         ref,
	}, nil
}

// AttachmentDelivered records that a retried report email went out.
func (s *Service) AttachmentDelivered(ctx context.Context, ref string) error {
	id, err := uuid.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid report ref %q: %w", ref, err)
	}
	return s.reports.MarkEmailed(ctx, id)
}

// SummaryView is the report preview for the trailing days.
type SummaryView struct {
	Summary           bp.ReportSummary `json:"summary"`
	CanGenerateReport bool             `json:"can_generate_report"`
	ReadingsCount     int              `json:"readings_count"`
	Period            Period           `json:"period"`
}

// Summary previews a report over the last days without storing anything.
func (s *Service) Summary(ctx context.Context, patientID uuid.UUID, days int) (*SummaryView, error) {
	if days < 1 || days > maxDays {
		v := response.NewValidationError()
		v.Add("days", "The days must be between 1 and %d.", maxDays)
		return nil, v.Err()
	}

	from, to := bp.Window(s.readings.Now(), days)
	readings, err := s.readings.ListRange(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	return &SummaryView{
		Summary:           bp.Summarize(readings, from, to),
		CanGenerateReport: len(readings) >= MinReadings,
		ReadingsCount:     len(readings),
		Period:            newPeriod(from, to, days),
	}, nil
}

// History lists a patient's stored reports, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	items, total, err := s.reports.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, rp := range items {
		s.withURL(rp)
	}
	return items, total, nil
}

// Download returns a report with its workbook content.
func (s *Service) Download(ctx context.Context, patientID, id uuid.UUID) (*Report, error) {
	rp, err := s.reports.GetByID(ctx, patientID, id)
	if err != nil {
		return nil, err
	}
	if len(rp.Content) == 0 {
		return nil, errors.New("report has no content")
	}
	s.withURL(rp)
	return rp, nil
}

func (s *Service) withURL(rp *Report) {
	rp.DownloadURL = fmt.Sprintf("%s/reports/%s/download", s.basePath, rp.ID)
}

func filename(patientID uuid.UUID, start, end time.Time) string {
	return fmt.Sprintf("bp_report_%s_%s_to_%s.xlsx", patientID, start.Format(dateLayout), end.Format(dateLayout))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// dayBounds spans whole calendar days, from start's midnight to the last
// instant of end.
func dayBounds(start, end time.Time) (from, to time.Time) {
	return start, end.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Location is the zone report dates are read in.
func (s *Service) Location() *time.Location { return s.readings.Now().Location() }
