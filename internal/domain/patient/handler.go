package patient

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	me := api.Group("", auth.RequireRole(auth.RolePatient))
	me.GET("/auth/me", h.Me)
	me.GET("/patient/profile", h.GetProfile)
	me.PUT("/patient/profile", h.UpdateProfile)
	me.GET("/patient/clinical-data", h.GetClinicalData)
	me.POST("/patient/clinical-data", h.SaveClinicalData)
	me.GET("/patient/dashboard", h.GetDashboard)
}

type registerRequest struct {
	FirstName            string     `json:"first_name"`
	Surname              string     `json:"surname"`
	DateOfBirth          string     `json:"date_of_birth"`
	Address              string     `json:"address"`
	MobilePhone          string     `json:"mobile_phone"`
	HomePhone            *string    `json:"home_phone"`
	Email                string     `json:"email"`
	PIN                  string     `json:"pin"`
	ClinicID             *uuid.UUID `json:"clinic_id"`
	DoctorID             *uuid.UUID `json:"doctor_id"`
	TermsAccepted        bool       `json:"terms_accepted"`
	DataSharingConsent   bool       `json:"data_sharing_consent"`
	NotificationsConsent bool       `json:"notifications_consent"`
}

func (h *Handler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dob, err := parseDate("date_of_birth", req.DateOfBirth)
	if err != nil {
		return err
	}
	reg := Registration{
		FirstName:            req.FirstName,
		Surname:              req.Surname,
		Address:              req.Address,
		MobilePhone:          req.MobilePhone,
		HomePhone:            req.HomePhone,
		Email:                req.Email,
		PIN:                  req.PIN,
		ClinicID:             req.ClinicID,
		DoctorID:             req.DoctorID,
		TermsAccepted:        req.TermsAccepted,
		DataSharingConsent:   req.DataSharingConsent,
		NotificationsConsent: req.NotificationsConsent,
	}
	if dob != nil {
		reg.DateOfBirth = *dob
	}
	res, err := h.svc.Register(c.Request().Context(), reg)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusCreated, "Patient registered successfully", res)
}

type loginRequest struct {
	MobilePhone string `json:"mobile_phone"`
	PIN         string `json:"pin"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.svc.Login(c.Request().Context(), req.MobilePhone, req.PIN)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "Login successful", res)
}

func (h *Handler) Me(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	profile, err := h.svc.Profile(c.Request().Context(), patientID)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "", map[string]interface{}{"patient": profile})
}

func (h *Handler) GetProfile(c echo.Context) error {
	return h.Me(c)
}

type profileRequest struct {
	FirstName            *string    `json:"first_name"`
	Surname              *string    `json:"surname"`
	DateOfBirth          *string    `json:"date_of_birth"`
	Address              *string    `json:"address"`
	MobilePhone          *string    `json:"mobile_phone"`
	HomePhone            *string    `json:"home_phone"`
	Email                *string    `json:"email"`
	ClinicID             *uuid.UUID `json:"clinic_id"`
	NotificationsConsent *bool      `json:"notifications_consent"`
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u := ProfileUpdate{
		FirstName:            req.FirstName,
		Surname:              req.Surname,
		Address:              req.Address,
		MobilePhone:          req.MobilePhone,
		HomePhone:            req.HomePhone,
		Email:                req.Email,
		ClinicID:             req.ClinicID,
		NotificationsConsent: req.NotificationsConsent,
	}
	if req.DateOfBirth != nil {
		dob, err := parseDate("date_of_birth", *req.DateOfBirth)
		if err != nil {
			return err
		}
		if dob == nil {
			dob = &time.Time{}
		}
		u.DateOfBirth = dob
	}

	profile, err := h.svc.UpdateProfile(c.Request().Context(), patientID, u)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "Profile updated successfully", map[string]interface{}{"patient": profile})
}

func (h *Handler) GetClinicalData(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	data, err := h.svc.ClinicalData(c.Request().Context(), patientID)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "", map[string]interface{}{"clinical_data": data})
}

// clinicalRequest accepts height and weight under their unit-suffixed names
// and the short names older clients send.
type clinicalRequest struct {
	HeightCM                    *float64     `json:"height_cm"`
	Height                      *float64     `json:"height"`
	WeightKG                    *float64     `json:"weight_kg"`
	Weight                      *float64     `json:"weight"`
	EthnicityCode               *string      `json:"ethnicity_code"`
	EthnicityDescription        *string      `json:"ethnicity_description"`
	SmokingStatus               *string      `json:"smoking_status"`
	LastBloodTestDate           *string      `json:"last_blood_test_date"`
	UrineProteinCreatinineRatio *float64     `json:"urine_protein_creatinine_ratio"`
	Comorbidities               []string     `json:"comorbidities"`
	HypertensionDiagnosis       *string      `json:"hypertension_diagnosis"`
	Medications                 []Medication `json:"medications"`
}

func (r clinicalRequest) input() (ClinicalInput, error) {
	in := ClinicalInput{
		HeightCM:                    firstFloat(r.HeightCM, r.Height),
		WeightKG:                    firstFloat(r.WeightKG, r.Weight),
		EthnicityCode:               r.EthnicityCode,
		EthnicityDescription:        r.EthnicityDescription,
		SmokingStatus:               r.SmokingStatus,
		UrineProteinCreatinineRatio: r.UrineProteinCreatinineRatio,
		Comorbidities:               r.Comorbidities,
		HypertensionDiagnosis:       r.HypertensionDiagnosis,
		Medications:                 r.Medications,
	}
	if r.LastBloodTestDate != nil {
		d, err := parseDate("last_blood_test_date", *r.LastBloodTestDate)
		if err != nil {
			return in, err
		}
		in.LastBloodTestDate = d
	}
	return in, nil
}

func (h *Handler) SaveClinicalData(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	var req clinicalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	in, err := req.input()
	if err != nil {
		return err
	}
	data, err := h.svc.SaveClinicalData(c.Request().Context(), patientID, in)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "Clinical data saved successfully", map[string]interface{}{"clinical_data": data})
}

func (h *Handler) GetDashboard(c echo.Context) error {
	patientID, err := auth.PatientID(c)
	if err != nil {
		return err
	}
	dash, err := h.svc.Dashboard(c.Request().Context(), patientID)
	if err != nil {
		return mapError(err)
	}
	return response.Success(c, http.StatusOK, "", dash)
}

// parseDate returns nil for an empty string.
func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		v := response.NewValidationError()
		v.Add(field, "The %s is not a valid date.", strings.ReplaceAll(field, "_", " "))
		return nil, v.Err()
	}
	return &t, nil
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func mapError(err error) error {
	var ve *response.ValidationError
	switch {
	case errors.As(err, &ve):
		return err
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Patient not found")
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, "Patient already exists")
	default:
		return err
	}
}
