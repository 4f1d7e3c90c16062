package bp

import "github.com/shopspring/decimal"

// State is the escalation step a submission ends in.
type State int

const (
	StateInitial State = iota
	StateAwaitingThird
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateAwaitingThird:
		return "awaiting_third"
	case StateFinal:
		return "final"
	default:
		return "initial"
	}
}

// Patient-facing responses.
const (
	ResponseRecheck  = "Please wait 5 minutes and recheck (Reading 3)."
	ResponseThankYou = "Thank you for submitting today's reading."
	ResponseVeryHigh = "Your blood pressure remains very high. Please contact NHS 111, your GP, or attend your nearest A&E for urgent advice."
)

// Escalation thresholds.
const (
	HighSystolic  = 180
	HighDiastolic = 110
)

// Classification is the result of classifying one submission.
type Classification struct {
	AverageSystolic  int      `json:"average_systolic"`
	AverageDiastolic int      `json:"average_diastolic"`
	AveragePulse     int      `json:"average_pulse"`
	Category         Category `json:"reading_category"`
	IsHigh           bool     `json:"is_high_reading"`
	RequiresUrgent   bool     `json:"requires_urgent_advice"`
	Response         string   `json:"system_response"`
	State            State    `json:"-"`
}

// RequiresThirdReading reports whether the patient must take a third reading
// before anything is stored.
func (c Classification) RequiresThirdReading() bool {
	return c.State == StateAwaitingThird
}

// Classify averages the present triples of a submission, assigns a NICE
// category and picks the response message. Values are assumed in range.
func Classify(sub Submission) Classification {
	triples := []Triple{sub.Reading1, sub.Reading2}
	if sub.Reading3 != nil {
		triples = append(triples, *sub.Reading3)
	}
	avg := averageTriples(triples)

	c := Classification{
		AverageSystolic:  avg.Systolic,
		AverageDiastolic: avg.Diastolic,
		AveragePulse:     avg.Pulse,
		Category:         Categorize(avg.Systolic, avg.Diastolic),
		IsHigh:           isHigh(avg.Systolic, avg.Diastolic),
		RequiresUrgent:   avg.Systolic >= HighSystolic && avg.Diastolic >= HighDiastolic,
		State:            StateFinal,
		Response:         ResponseThankYou,
	}

	if sub.Reading3 == nil {
		if c.IsHigh {
			c.State = StateAwaitingThird
			c.Response = ResponseRecheck
		}
		return c
	}

	// The recheck message compares the third triple against the first pair
	// rather than the three-way mean.
	pair := averageTriples([]Triple{sub.Reading1, sub.Reading2})
	combinedSys := roundedMean(int64(pair.Systolic+sub.Reading3.Systolic), 2)
	combinedDia := roundedMean(int64(pair.Diastolic+sub.Reading3.Diastolic), 2)
	if isHigh(combinedSys, combinedDia) {
		c.Response = ResponseVeryHigh
	}
	return c
}

// Categorize maps averaged values to a NICE band. The first band whose
// systolic or diastolic threshold is met wins.
func Categorize(systolic, diastolic int) Category {
	switch {
	case systolic >= 180 || diastolic >= 110:
		return CategoryHypertensiveCrisis
	case systolic >= 160 || diastolic >= 100:
		return CategoryStage2
	case systolic >= 140 || diastolic >= 90:
		return CategoryStage1
	case systolic >= 135 || diastolic >= 85:
		return CategoryHighNormal
	case systolic >= 120 || diastolic >= 80:
		return CategoryNormal
	default:
		return CategoryOptimal
	}
}

func isHigh(systolic, diastolic int) bool {
	return systolic >= HighSystolic || diastolic >= HighDiastolic
}

func averageTriples(ts []Triple) Triple {
	var sys, dia, pulse int64
	for _, t := range ts {
		sys += int64(t.Systolic)
		dia += int64(t.Diastolic)
		pulse += int64(t.Pulse)
	}
	n := int64(len(ts))
	return Triple{
		Systolic:  roundedMean(sys, n),
		Diastolic: roundedMean(dia, n),
		Pulse:     roundedMean(pulse, n),
	}
}

// roundedMean returns sum/n rounded half away from zero. n must be positive.
func roundedMean(sum, n int64) int {
	return int(decimal.NewFromInt(sum).Div(decimal.NewFromInt(n)).Round(0).IntPart())
}
