package bp

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSummarize_EmptyIsInsufficientData(t *testing.T) {
	s := Summarize(nil, base, base.AddDate(0, 0, 6))

	if s.ComplianceStatus != ComplianceInsufficientData {
		t.Errorf("expected insufficient_data, got %q", s.ComplianceStatus)
	}
	if s.TotalReadings != 0 || s.DaysWithReadings != 0 || s.HighReadingsCount != 0 || s.UrgentReadingsCount != 0 {
		t.Errorf("expected zero counts, got %+v", s)
	}
	if s.OverallAverage != nil || s.HighestReading != nil || s.LowestReading != nil {
		t.Error("expected no averages or extremes")
	}
	if s.NICEGuidelinesCompliant {
		t.Error("empty period cannot be NICE compliant")
	}
}

func TestSummarize_NICEEightReadingsFourDays(t *testing.T) {
	var readings []Reading
	for day := 0; day < 4; day++ {
		readings = append(readings,
			reading(day, 8, SessionAM, 130, 80, 70),
			reading(day, 20, SessionPM, 134, 84, 74),
		)
	}

	s := Summarize(readings, base, base.AddDate(0, 0, 6))

	if !s.NICEGuidelinesCompliant {
		t.Error("expected 8 readings over 4 days to be compliant")
	}
	if s.TotalReadings != 8 || s.DaysWithReadings != 4 {
		t.Errorf("unexpected totals %d/%d", s.TotalReadings, s.DaysWithReadings)
	}
	if s.OverallAverage == nil || s.OverallAverage.TotalReadings != 6 {
		t.Errorf("expected overall average over 6 readings after first-day exclusion, got %+v", s.OverallAverage)
	}
	if s.AMAverage == nil || s.AMAverage.Systolic != 130 {
		t.Errorf("unexpected AM average %+v", s.AMAverage)
	}
	if s.PMAverage == nil || s.PMAverage.Systolic != 134 {
		t.Errorf("unexpected PM average %+v", s.PMAverage)
	}
}

func TestSummarize_NICEEightReadingsThreeDays(t *testing.T) {
	readings := []Reading{
		reading(0, 7, SessionAM, 130, 80, 70),
		reading(0, 9, SessionAM, 130, 80, 70),
		reading(0, 19, SessionPM, 130, 80, 70),
		reading(0, 21, SessionPM, 130, 80, 70),
		reading(1, 8, SessionAM, 130, 80, 70),
		reading(1, 20, SessionPM, 130, 80, 70),
		reading(2, 8, SessionAM, 130, 80, 70),
		reading(2, 20, SessionPM, 130, 80, 70),
	}

	s := Summarize(readings, base, base.AddDate(0, 0, 6))

	if s.NICEGuidelinesCompliant {
		t.Error("expected 8 readings over 3 days to be non-compliant")
	}
}

func TestComplianceStatus_Boundaries(t *testing.T) {
	tests := []struct {
		actual, expected int
		want             string
	}{
		{8, 10, ComplianceExcellent},
		{4, 5, ComplianceExcellent},
		{7999, 10000, ComplianceGood},
		{6, 10, ComplianceGood},
		{4, 10, ComplianceFair},
		{3, 10, CompliancePoor},
		{0, 7, CompliancePoor},
		{1, 0, ComplianceInsufficientData},
	}
	for _, tt := range tests {
		if got := ComplianceStatus(tt.actual, tt.expected); got != tt.want {
			t.Errorf("ComplianceStatus(%d, %d) = %q, want %q", tt.actual, tt.expected, got, tt.want)
		}
	}
}

func TestSummarize_CompliancePercentage(t *testing.T) {
	readings := []Reading{
		reading(0, 8, SessionAM, 130, 80, 70),
		reading(2, 8, SessionAM, 130, 80, 70),
	}
	s := Summarize(readings, base, base.AddDate(0, 0, 2))

	if s.CompliancePercentage != 66.67 {
		t.Errorf("expected 66.67, got %v", s.CompliancePercentage)
	}
	if s.ComplianceStatus != ComplianceGood {
		t.Errorf("expected good, got %q", s.ComplianceStatus)
	}
}

func TestSummarize_ExtremesTieGoesToEarliest(t *testing.T) {
	first := reading(0, 8, SessionAM, 150, 90, 70)
	first.ID = uuid.New()
	later := reading(1, 8, SessionAM, 150, 95, 75)
	later.ID = uuid.New()
	low1 := reading(2, 8, SessionPM, 110, 70, 60)
	low1.ID = uuid.New()
	low2 := reading(3, 8, SessionPM, 110, 72, 61)
	low2.ID = uuid.New()

	s := Summarize([]Reading{low2, later, low1, first}, base, base.AddDate(0, 0, 3))

	if s.HighestReading.ID != first.ID {
		t.Errorf("expected earliest 150 reading as highest")
	}
	if s.LowestReading.ID != low1.ID {
		t.Errorf("expected earliest 110 reading as lowest")
	}
	if s.HighestReading.SessionType != SessionAM || s.HighestReading.Diastolic != 90 {
		t.Errorf("unexpected highest snapshot %+v", s.HighestReading)
	}
}

func TestSummarize_CountsFlags(t *testing.T) {
	high := reading(0, 8, SessionAM, 185, 100, 80)
	high.IsHighReading = true
	urgent := reading(1, 8, SessionAM, 190, 115, 80)
	urgent.IsHighReading = true
	urgent.RequiresUrgentAdvice = true
	normal := reading(2, 8, SessionAM, 120, 80, 70)

	s := Summarize([]Reading{high, urgent, normal}, base, base.AddDate(0, 0, 2))

	if s.HighReadingsCount != 2 || s.UrgentReadingsCount != 1 {
		t.Errorf("expected 2 high and 1 urgent, got %d and %d", s.HighReadingsCount, s.UrgentReadingsCount)
	}
	if s.OverallAverage != nil {
		t.Error("three readings are not enough for an overall average")
	}
}

func TestExpectedDays(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := ExpectedDays(start, start.AddDate(0, 0, 6)); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := ExpectedDays(start, start.Add(23*time.Hour)); got != 1 {
		t.Errorf("expected 1 for same day, got %d", got)
	}
	if got := ExpectedDays(start, start.AddDate(0, 0, -3)); got != 1 {
		t.Errorf("expected minimum of 1, got %d", got)
	}
}
