package report

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/response"
	"github.com/myhomebp/myhomebp/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.RolePatient))
	g.POST("/generate", h.Generate)
	g.GET("/summary", h.Summary)
	g.GET("/history", h.History)
	g.GET("/:id/download", h.Download)
}

type generateRequest struct {
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	IncludeClinicalData *bool  `json:"include_clinical_data"`
	EmailToClinic       bool   `json:"email_to_clinic"`
}

func (r generateRequest) toRequest(loc *time.Location) (GenerateRequest, error) {
	v := response.NewValidationError()
	out := GenerateRequest{
		IncludeClinicalData: r.IncludeClinicalData == nil || *r.IncludeClinicalData,
		EmailToClinic:       r.EmailToClinic,
	}
	parse := func(field, raw string) *time.Time {
		if raw == "" {
			return nil
		}
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			v.Add(field, "The %s is not a valid date.", field)
			return nil
		}
		return &t
	}
	out.StartDate = parse("start_date", r.StartDate)
	out.EndDate = parse("end_date", r.EndDate)
	return out, v.Err()
}

func (h *Handler) Generate(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	var body generateRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req, err := body.toRequest(h.svc.Location())
	if err != nil {
		return err
	}

	res, err := h.svc.Generate(c.Request().Context(), patientID, req)
	var insufficient *InsufficientReadingsError
	if errors.As(err, &insufficient) {
		return response.Fail(c, http.StatusUnprocessableEntity,
			"Insufficient readings. Please complete at least 4 days of readings before generating a report.",
			map[string]interface{}{
				"current_readings": insufficient.Count,
				"minimum_required": MinReadings,
			})
	}
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusCreated, "Report generated successfully", res)
}

func (h *Handler) Summary(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	days := defaultDays
	if raw := c.QueryParam("days"); raw != "" {
		if days, err = strconv.Atoi(raw); err != nil {
			v := response.NewValidationError()
			v.Add("days", "The days must be an integer.")
			return v.Err()
		}
	}

	view, err := h.svc.Summary(c.Request().Context(), patientID, days)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "", view)
}

func (h *Handler) History(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), patientID, p.Limit, p.Offset)
	if err != nil {
		return mapError(err)
	}
	if items == nil {
		items = []*Report{}
	}
	return response.Success(c, http.StatusOK, "", pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) Download(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid report id")
	}

	rp, err := h.svc.Download(c.Request().Context(), patientID, id)
	if err != nil {
		return mapError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+rp.Filename+`"`)
	return c.Blob(http.StatusOK, ContentType, rp.Content)
}

func mapError(err error) error {
	var ve *response.ValidationError
	switch {
	case errors.As(err, &ve):
		return err
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Report not found")
	default:
		return err
	}
}
