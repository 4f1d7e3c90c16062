package bp

// Trend collapses readings into one point per calendar day, oldest first.
func Trend(readings []Reading) []TrendPoint {
	sorted := sortedByDate(readings)
	points := make([]TrendPoint, 0)
	var day []Reading
	flush := func() {
		if len(day) == 0 {
			return
		}
		avg := meanOf(day)
		points = append(points, TrendPoint{
			Date:          calendarDate(day[0].ReadingDate),
			Systolic:      avg.Systolic,
			Diastolic:     avg.Diastolic,
			Pulse:         avg.Pulse,
			ReadingsCount: avg.TotalReadings,
		})
		day = day[:0]
	}
	for _, r := range sorted {
		if len(day) > 0 && calendarDate(day[0].ReadingDate) != calendarDate(r.ReadingDate) {
			flush()
		}
		day = append(day, r)
	}
	flush()
	return points
}
