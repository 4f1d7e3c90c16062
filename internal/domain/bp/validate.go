package bp

import (
	"time"

	"github.com/myhomebp/myhomebp/internal/platform/response"
)

// Accepted ranges per triple value.
const (
	MinSystolic  = 50
	MaxSystolic  = 300
	MinDiastolic = 1
	MaxDiastolic = 150
	MinPulse     = 20
	MaxPulse     = 300
)

// Validate checks the submission against the accepted ranges. Readings
// dated after now are rejected.
func (s Submission) Validate(now time.Time) error {
	v := response.NewValidationError()
	if !s.SessionType.Valid() {
		v.Add("session_type", "The session type must be am or pm.")
	}
	if s.ReadingDate.IsZero() {
		v.Add("reading_date", "The reading date is required.")
	} else if s.ReadingDate.After(now) {
		v.Add("reading_date", "The reading date must not be in the future.")
	}
	validateTriple(v, "reading_1", s.Reading1)
	validateTriple(v, "reading_2", s.Reading2)
	if s.Reading3 != nil {
		validateTriple(v, "reading_3", *s.Reading3)
	}
	return v.Err()
}

func validateTriple(v *response.ValidationError, prefix string, t Triple) {
	checkRange(v, prefix+"_systolic", t.Systolic, MinSystolic, MaxSystolic)
	checkRange(v, prefix+"_diastolic", t.Diastolic, MinDiastolic, MaxDiastolic)
	checkRange(v, prefix+"_pulse", t.Pulse, MinPulse, MaxPulse)
}

func checkRange(v *response.ValidationError, field string, val, lo, hi int) {
	if val < lo || val > hi {
		v.Add(field, "The %s must be between %d and %d.", field, lo, hi)
	}
}
