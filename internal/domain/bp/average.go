package bp

import (
	"sort"
	"time"
)

const (
	minRollingReadings   = 4
	minRemainingReadings = 3
	minSessionReadings   = 2
)

// RollingAverage applies the NICE home-monitoring rule to a window of
// readings: every reading on the first calendar day is dropped and the rest
// are averaged. It returns nil when there are too few readings either side of
// the exclusion.
func RollingAverage(readings []Reading) *Average {
	if len(readings) < minRollingReadings {
		return nil
	}
	sorted := sortedByDate(readings)
	firstDay := calendarDate(sorted[0].ReadingDate)

	remaining := make([]Reading, 0, len(sorted))
	for _, r := range sorted {
		if calendarDate(r.ReadingDate) != firstDay {
			remaining = append(remaining, r)
		}
	}
	if len(remaining) < minRemainingReadings {
		return nil
	}
	return meanOf(remaining)
}

// SessionAverage averages the readings taken in one session. Unlike
// RollingAverage no day is excluded.
func SessionAverage(readings []Reading, session Session) *Average {
	var matched []Reading
	for _, r := range readings {
		if r.SessionType == session {
			matched = append(matched, r)
		}
	}
	if len(matched) < minSessionReadings {
		return nil
	}
	return meanOf(matched)
}

// Window returns the trailing range of the given number of days ending at now.
func Window(now time.Time, days int) (from, to time.Time) {
	return now.Add(-time.Duration(days) * 24 * time.Hour), now
}

// InRange returns the readings whose reading date falls within [from, to].
func InRange(readings []Reading, from, to time.Time) []Reading {
	var out []Reading
	for _, r := range readings {
		if r.ReadingDate.Before(from) || r.ReadingDate.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// InLocation returns copies of the readings with reading dates converted to
// loc, so calendar-day grouping follows loc. A nil loc leaves them unchanged.
func InLocation(readings []Reading, loc *time.Location) []Reading {
	if loc == nil {
		return readings
	}
	out := make([]Reading, len(readings))
	for i, r := range readings {
		r.ReadingDate = r.ReadingDate.In(loc)
		out[i] = r
	}
	return out
}

func meanOf(readings []Reading) *Average {
	var sys, dia, pulse int64
	for _, r := range readings {
		sys += int64(r.AverageSystolic)
		dia += int64(r.AverageDiastolic)
		pulse += int64(r.AveragePulse)
	}
	n := int64(len(readings))
	return &Average{
		Systolic:         roundedMean(sys, n),
		Diastolic:        roundedMean(dia, n),
		Pulse:            roundedMean(pulse, n),
		TotalReadings:    len(readings),
		DaysWithReadings: distinctDays(readings),
	}
}

func sortedByDate(readings []Reading) []Reading {
	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReadingDate.Before(sorted[j].ReadingDate)
	})
	return sorted
}

func distinctDays(readings []Reading) int {
	days := make(map[string]struct{}, len(readings))
	for _, r := range readings {
		days[calendarDate(r.ReadingDate)] = struct{}{}
	}
	return len(days)
}

// calendarDate is the date of t in its own location.
func calendarDate(t time.Time) string {
	return t.Format("2006-01-02")
}
