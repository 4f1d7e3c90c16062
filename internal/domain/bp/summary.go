package bp

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	niceMinReadings = 8
	niceMinDays     = 4
)

// Summarize aggregates the readings of a report period. The readings are
// expected to already lie within [start, end]; an empty set yields the
// insufficient_data summary.
func Summarize(readings []Reading, start, end time.Time) ReportSummary {
	if len(readings) == 0 {
		return ReportSummary{ComplianceStatus: ComplianceInsufficientData}
	}

	sorted := sortedByDate(readings)
	days := distinctDays(sorted)

	s := ReportSummary{
		TotalReadings:    len(sorted),
		DaysWithReadings: days,
		OverallAverage:   RollingAverage(sorted),
		AMAverage:        SessionAverage(sorted, SessionAM),
		PMAverage:        SessionAverage(sorted, SessionPM),
	}

	highest, lowest := sorted[0], sorted[0]
	for _, r := range sorted {
		// Strict comparisons keep the earliest reading on ties.
		if r.AverageSystolic > highest.AverageSystolic {
			highest = r
		}
		if r.AverageSystolic < lowest.AverageSystolic {
			lowest = r
		}
		if r.IsHighReading {
			s.HighReadingsCount++
		}
		if r.RequiresUrgentAdvice {
			s.UrgentReadingsCount++
		}
	}
	s.HighestReading = snapshot(highest)
	s.LowestReading = snapshot(lowest)

	expected := ExpectedDays(start, end)
	s.ComplianceStatus = ComplianceStatus(days, expected)
	s.CompliancePercentage = compliancePercentage(days, expected)
	s.NICEGuidelinesCompliant = len(sorted) >= niceMinReadings && days >= niceMinDays
	return s
}

// ExpectedDays is the number of calendar days in [start, end], counting both
// ends. Dates are read in start's location.
func ExpectedDays(start, end time.Time) int {
	end = end.In(start.Location())
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	days := int(to.Sub(from).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

// ComplianceStatus bands the share of expected days that have a reading.
// Thresholds are compared with integer arithmetic so exactly 80% is excellent.
func ComplianceStatus(actualDays, expectedDays int) string {
	if expectedDays <= 0 {
		return ComplianceInsufficientData
	}
	pct100 := actualDays * 100
	switch {
	case pct100 >= 80*expectedDays:
		return ComplianceExcellent
	case pct100 >= 60*expectedDays:
		return ComplianceGood
	case pct100 >= 40*expectedDays:
		return ComplianceFair
	default:
		return CompliancePoor
	}
}

func compliancePercentage(actualDays, expectedDays int) float64 {
	if expectedDays <= 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(actualDays)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(expectedDays))).
		Round(2)
	return pct.InexactFloat64()
}

func snapshot(r Reading) *ReadingSnapshot {
	return &ReadingSnapshot{
		ID:          r.ID,
		Date:        r.ReadingDate,
		Systolic:    r.AverageSystolic,
		Diastolic:   r.AverageDiastolic,
		Pulse:       r.AveragePulse,
		SessionType: r.SessionType,
	}
}
