package bp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/blood-pressure", auth.RequireRole(auth.RolePatient))
	g.POST("/record", h.Record)
	g.GET("/readings", h.ListReadings)
	g.GET("/averages", h.GetAverages)
}

// recordRequest is the flat body the mobile client posts. Third-measurement
// fields are pointers so a partial triple can be told apart from none.
type recordRequest struct {
	ReadingID         *uuid.UUID `json:"reading_id"`
	ReadingDate       string     `json:"reading_date"`
	SessionType       string     `json:"session_type"`
	Reading1Systolic  int        `json:"reading_1_systolic"`
	Reading1Diastolic int        `json:"reading_1_diastolic"`
	Reading1Pulse     int        `json:"reading_1_pulse"`
	Reading2Systolic  int        `json:"reading_2_systolic"`
	Reading2Diastolic int        `json:"reading_2_diastolic"`
	Reading2Pulse     int        `json:"reading_2_pulse"`
	Reading3Systolic  *int       `json:"reading_3_systolic"`
	Reading3Diastolic *int       `json:"reading_3_diastolic"`
	Reading3Pulse     *int       `json:"reading_3_pulse"`
}

var readingDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseReadingDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range readingDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// third returns the third triple. It is nil when no field was sent and an
// error when only some were.
func (r recordRequest) third() (*Triple, error) {
	fields := map[string]*int{
		"reading_3_systolic":  r.Reading3Systolic,
		"reading_3_diastolic": r.Reading3Diastolic,
		"reading_3_pulse":     r.Reading3Pulse,
	}
	v := response.NewValidationError()
	present := 0
	for _, p := range fields {
		if p != nil {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present < len(fields) {
		for name, p := range fields {
			if p == nil {
				v.Add(name, "The %s field is required when any third reading value is present.", name)
			}
		}
		return nil, v.Err()
	}
	return &Triple{Systolic: *r.Reading3Systolic, Diastolic: *r.Reading3Diastolic, Pulse: *r.Reading3Pulse}, nil
}

func (r recordRequest) submission(loc *time.Location) (Submission, error) {
	v := response.NewValidationError()
	sub := Submission{
		SessionType: Session(r.SessionType),
		Reading1:    Triple{Systolic: r.Reading1Systolic, Diastolic: r.Reading1Diastolic, Pulse: r.Reading1Pulse},
		Reading2:    Triple{Systolic: r.Reading2Systolic, Diastolic: r.Reading2Diastolic, Pulse: r.Reading2Pulse},
	}
	if r.ReadingDate != "" {
		t, ok := parseReadingDate(r.ReadingDate, loc)
		if !ok {
			v.Add("reading_date", "The reading date is not a valid date.")
			return sub, v.Err()
		}
		sub.ReadingDate = t
	}
	third, err := r.third()
	if err != nil {
		return sub, err
	}
	sub.Reading3 = third
	return sub, nil
}

func (h *Handler) Record(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}

	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if req.ReadingID != nil {
		third, err := req.third()
		if err != nil {
			return err
		}
		if third == nil {
			v := response.NewValidationError()
			v.Add("reading_3_systolic", "The third reading is required when amending a reading.")
			return v.Err()
		}
		res, err := h.svc.AmendWithThird(ctx, patientID, *req.ReadingID, *third)
		if err != nil {
			return mapError(err)
		}
		return response.Success(c, http.StatusOK, "Blood pressure reading updated successfully", recordedData(res))
	}

	sub, err := req.submission(h.svc.Location())
	if err != nil {
		return err
	}
	res, err := h.svc.Record(ctx, patientID, sub)
	if err != nil {
		return mapError(err)
	}

	if res.Reading == nil {
		return response.Fail(c, http.StatusUnprocessableEntity, "Third reading required due to high blood pressure", map[string]interface{}{
			"system_response":        res.Classification.Response,
			"requires_third_reading": true,
			"average_systolic":       res.Classification.AverageSystolic,
			"average_diastolic":      res.Classification.AverageDiastolic,
		})
	}
	return response.Success(c, http.StatusCreated, "Blood pressure reading recorded successfully", recordedData(res))
}

func recordedData(res *RecordResult) map[string]interface{} {
	return map[string]interface{}{
		"reading":                res.Reading,
		"system_response":        res.Reading.SystemResponse,
		"requires_third_reading": false,
		"average_systolic":       res.Reading.AverageSystolic,
		"average_diastolic":      res.Reading.AverageDiastolic,
		"average_pulse":          res.Reading.AveragePulse,
		"reading_category":       res.Reading.ReadingCategory,
	}
}

func (h *Handler) ListReadings(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	days, err := intQuery(c, "days", DefaultDays)
	if err != nil {
		return err
	}
	var session *Session
	if st := c.QueryParam("session_type"); st != "" {
		s := Session(st)
		session = &s
	}

	view, err := h.svc.Readings(c.Request().Context(), patientID, days, session)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "", view)
}

func (h *Handler) GetAverages(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	period, err := intQuery(c, "period", DefaultDays)
	if err != nil {
		return err
	}

	view, err := h.svc.Averages(c.Request().Context(), patientID, period)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "", view)
}

func intQuery(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v := response.NewValidationError()
		v.Add(name, "The %s must be an integer.", name)
		return 0, v.Err()
	}
	return n, nil
}

func mapError(err error) error {
	var ve *response.ValidationError
	switch {
	case errors.As(err, &ve):
		return err
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "reading not found")
	case errors.Is(err, ErrAlreadyAmended):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
