package bp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/myhomebp/myhomebp/internal/platform/db"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

// DefaultDays is the window used when a caller does not ask for one.
const DefaultDays = 7

const maxDays = 365

// Periods accepted by the averages view.
var Periods = []int{7, 30, 90}

var (
	ErrNotFound       = db.ErrNotFound
	ErrAlreadyAmended = errors.New("reading already has a third measurement")
)

type Service struct {
	readings Repository
	clock    func() time.Time
	loc      *time.Location
	logger   zerolog.Logger
}

func NewService(readings Repository) *Service {
	return &Service{
		readings: readings,
		clock:    time.Now,
		loc:      time.UTC,
		logger:   zerolog.Nop(),
	}
}

// SetClock replaces the time source.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// SetLocation sets the zone used to split readings into calendar days.
func (s *Service) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) SetLogger(logger zerolog.Logger) { s.logger = logger }

// Location is the zone calendar days are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the service's current time in its location.
func (s *Service) Now() time.Time { return s.clock().In(s.loc) }

// RecordResult is the outcome of a submission. Reading is nil when the
// patient still has to take a third measurement.
type RecordResult struct {
	Reading        *Reading
	Classification Classification
}

// Record validates and classifies a submission and stores it unless a third
// measurement is required first.
func (s *Service) Record(ctx context.Context, patientID uuid.UUID, sub Submission) (*RecordResult, error) {
	if err := sub.Validate(s.Now()); err != nil {
		return nil, err
	}

	c := Classify(sub)
	if c.RequiresThirdReading() {
		s.logger.Info().
			Str("patient_id", patientID.String()).
			Int("average_systolic", c.AverageSystolic).
			Int("average_diastolic", c.AverageDiastolic).
			Msg("high reading, third measurement requested")
		return &RecordResult{Classification: c}, nil
	}

	rd := NewReading(patientID, sub, c)
	if err := s.readings.Create(ctx, rd); err != nil {
		return nil, err
	}
	s.logEscalation(rd)
	return &RecordResult{Reading: rd, Classification: c}, nil
}

// AmendWithThird adds the third measurement to a stored two-measurement
// reading and recomputes everything derived from it.
func (s *Service) AmendWithThird(ctx context.Context, patientID, readingID uuid.UUID, third Triple) (*RecordResult, error) {
	rd, err := s.readings.GetByID(ctx, readingID)
	if err != nil {
		return nil, err
	}
	if rd.PatientID != patientID {
		return nil, fmt.Errorf("get reading: %w", ErrNotFound)
	}
	if rd.Third() != nil {
		return nil, ErrAlreadyAmended
	}

	sub := rd.Submission()
	sub.Reading3 = &third
	if err := sub.Validate(s.Now()); err != nil {
		return nil, err
	}

	c := Classify(sub)
	rd.SetThird(&third)
	rd.Apply(c)
	if err := s.readings.AddThirdReading(ctx, rd); err != nil {
		// The conditional update matched nothing: someone amended it first.
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrAlreadyAmended
		}
		return nil, err
	}
	s.logEscalation(rd)
	return &RecordResult{Reading: rd, Classification: c}, nil
}

func (s *Service) logEscalation(rd *Reading) {
	if !rd.RequiresUrgentAdvice && rd.SystemResponse != ResponseVeryHigh {
		return
	}
	s.logger.Warn().
		Str("patient_id", rd.PatientID.String()).
		Str("reading_id", rd.ID.String()).
		Int("average_systolic", rd.AverageSystolic).
		Int("average_diastolic", rd.AverageDiastolic).
		Bool("requires_urgent_advice", rd.RequiresUrgentAdvice).
		Msg("reading requires urgent advice")
}

// ListRange returns a patient's readings in [from, to], ascending, with
// reading dates in the service location.
func (s *Service) ListRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]Reading, error) {
	readings, err := s.readings.ListByPatient(ctx, patientID, from, to, nil)
	if err != nil {
		return nil, err
	}
	return InLocation(readings, s.loc), nil
}

// SevenDayAverage applies the rolling rule to the trailing seven days.
func (s *Service) SevenDayAverage(ctx context.Context, patientID uuid.UUID) (*Average, error) {
	from, to := Window(s.Now(), 7)
	readings, err := s.ListRange(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	return RollingAverage(readings), nil
}

// ReadingsView is the patient's reading list with its averages.
type ReadingsView struct {
	Readings        []Reading `json:"readings"`
	SevenDayAverage *Average  `json:"seven_day_average"`
	AMAverage       *Average  `json:"am_average"`
	PMAverage       *Average  `json:"pm_average"`
	TotalReadings   int       `json:"total_readings"`
}

// Readings lists the last days of readings, newest first, optionally
// restricted to one session. The seven-day average ignores the session filter.
func (s *Service) Readings(ctx context.Context, patientID uuid.UUID, days int, session *Session) (*ReadingsView, error) {
	if err := validateDays("days", days); err != nil {
		return nil, err
	}
	if session != nil && !session.Valid() {
		v := response.NewValidationError()
		v.Add("session_type", "The session type must be am or pm.")
		return nil, v.Err()
	}

	now := s.Now()
	from, to := Window(now, max(days, 7))
	all, err := s.ListRange(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}

	from7, _ := Window(now, 7)
	fromDays, _ := Window(now, days)
	inWindow := InRange(all, fromDays, to)

	listed := make([]Reading, 0, len(inWindow))
	for i := len(inWindow) - 1; i >= 0; i-- {
		if session == nil || inWindow[i].SessionType == *session {
			listed = append(listed, inWindow[i])
		}
	}

	return &ReadingsView{
		Readings:        listed,
		SevenDayAverage: RollingAverage(InRange(all, from7, to)),
		AMAverage:       SessionAverage(inWindow, SessionAM),
		PMAverage:       SessionAverage(inWindow, SessionPM),
		TotalReadings:   len(listed),
	}, nil
}

// AveragesView holds the averages and per-day trend over a period.
type AveragesView struct {
	OverallAverage *Average     `json:"overall_average"`
	AMAverage      *Average     `json:"am_average"`
	PMAverage      *Average     `json:"pm_average"`
	TrendData      []TrendPoint `json:"trend_data"`
	PeriodDays     int          `json:"period_days"`
}

// Averages computes session averages and trend data over period days. The
// overall figure always uses the seven-day rolling rule.
func (s *Service) Averages(ctx context.Context, patientID uuid.UUID, period int) (*AveragesView, error) {
	if !validPeriod(period) {
		v := response.NewValidationError()
		v.Add("period", "The period must be one of 7, 30 or 90.")
		return nil, v.Err()
	}

	now := s.Now()
	from, to := Window(now, period)
	inPeriod, err := s.ListRange(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}
	from7, _ := Window(now, 7)

	return &AveragesView{
		OverallAverage: RollingAverage(InRange(inPeriod, from7, to)),
		AMAverage:      SessionAverage(inPeriod, SessionAM),
		PMAverage:      SessionAverage(inPeriod, SessionPM),
		TrendData:      Trend(inPeriod),
		PeriodDays:     period,
	}, nil
}

func (s *Service) Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error) {
	rd, err := s.readings.Latest(ctx, patientID)
	if err != nil {
		return nil, err
	}
	rd.ReadingDate = rd.ReadingDate.In(s.loc)
	return rd, nil
}

func (s *Service) Recent(ctx context.Context, patientID uuid.UUID, limit int) ([]Reading, error) {
	readings, err := s.readings.Recent(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	return InLocation(readings, s.loc), nil
}

func (s *Service) Count(ctx context.Context, patientID uuid.UUID) (int, error) {
	return s.readings.CountByPatient(ctx, patientID)
}

func validPeriod(p int) bool {
	for _, v := range Periods {
		if v == p {
			return true
		}
	}
	return false
}

func validateDays(field string, days int) error {
	if days < 1 || days > maxDays {
		v := response.NewValidationError()
		v.Add(field, "The %s must be between 1 and %d.", field, maxDays)
		return v.Err()
	}
	return nil
}
