package clinic

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

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Directory reads are public.
	api.GET("/clinics", h.ListClinics)
	api.GET("/clinics/search", h.SearchClinics)
	api.GET("/clinics/nearby", h.NearbyClinics)
	api.GET("/clinics/:id", h.GetClinic)
	api.GET("/clinics/:id/doctors", h.ClinicDoctors)
	api.GET("/specialities", h.ListSpecialities)
	api.GET("/specialities/:id", h.GetSpeciality)
	api.GET("/specialities/:id/doctors", h.SpecialityDoctors)
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/specialities", h.CreateSpeciality)
	admin.PUT("/specialities/:id", h.UpdateSpeciality)
	admin.DELETE("/specialities/:id", h.DeleteSpeciality)
	admin.POST("/doctors", h.CreateDoctor)
	admin.PUT("/doctors/:id", h.UpdateDoctor)
	admin.DELETE("/doctors/:id", h.DeleteDoctor)
	admin.POST("/doctors/:id/specialities", h.AttachSpecialities)
	admin.POST("/doctors/:id/clinics", h.AttachClinics)
	admin.POST("/clinics", h.CreateClinic)
	admin.PUT("/clinics/:id", h.UpdateClinic)
	admin.DELETE("/clinics/:id", h.DeleteClinic)
}

// -- Clinic Handlers --

func (h *Handler) ListClinics(c echo.Context) error {
	p := pagination.FromContext(c)
	f := ClinicFilter{Name: c.QueryParam("search"), Type: c.QueryParam("type")}
	clinics, total, err := h.svc.ListClinics(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return mapError(err, "Clinic")
	}
	return response.Success(c, http.StatusOK, "", pagination.NewResponse(clinics, total, p.Limit, p.Offset))
}

func (h *Handler) SearchClinics(c echo.Context) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	f := ClinicFilter{
		Postcode: c.QueryParam("postcode"),
		Name:     c.QueryParam("name"),
		Type:     c.QueryParam("type"),
	}
	clinics, err := h.svc.SearchClinics(c.Request().Context(), f, limit)
	if err != nil {
		return mapError(err, "Clinic")
	}
	if clinics == nil {
		clinics = []*Clinic{}
	}
	return response.Success(c, http.StatusOK, "", clinics)
}

func (h *Handler) NearbyClinics(c echo.Context) error {
	radius, err := intQuery(c, "radius")
	if err != nil {
		return err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return err
	}
	res, err := h.svc.NearbyClinics(c.Request().Context(), c.QueryParam("postcode"), radius, limit)
	if err != nil {
		return mapError(err, "Clinic")
	}
	if res.Clinics == nil {
		res.Clinics = []*Clinic{}
	}
	return response.Success(c, http.StatusOK, "", res)
}

func (h *Handler) GetClinic(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	clinic, err := h.svc.GetClinic(c.Request().Context(), id)
	if err != nil {
		return mapError(err, "Clinic")
	}
	return response.Success(c, http.StatusOK, "", clinic)
}

func (h *Handler) ClinicDoctors(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	clinic, doctors, err := h.svc.ClinicDoctors(c.Request().Context(), id)
	if err != nil {
		return mapError(err, "Clinic")
	}
	if doctors == nil {
		doctors = []*Doctor{}
	}
	return response.Success(c, http.StatusOK, "", map[string]interface{}{
		"clinic":  clinic,
		"doctors": doctors,
	})
}

type clinicRequest struct {
	Name      *string  `json:"name"`
	Address   *string  `json:"address"`
	Postcode  *string  `json:"postcode"`
	Phone     *string  `json:"phone"`
	Email     *string  `json:"email"`
	Type      *string  `json:"type"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	IsActive  *bool    `json:"is_active"`
}

func (r clinicRequest) apply(c *Clinic) {
	setString(&c.Name, r.Name)
	setString(&c.Address, r.Address)
	setString(&c.Postcode, r.Postcode)
	setString(&c.Type, r.Type)
	if r.Phone != nil {
		c.Phone = r.Phone
	}
	if r.Email != nil {
		c.Email = r.Email
	}
	if r.Latitude != nil {
		c.Latitude = r.Latitude
	}
	if r.Longitude != nil {
		c.Longitude = r.Longitude
	}
	if r.IsActive != nil {
		c.IsActive = *r.IsActive
	}
}

func (h *Handler) CreateClinic(c echo.Context) error {
	var req clinicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	clinic := &Clinic{}
	req.apply(clinic)
	if err := h.svc.CreateClinic(c.Request().Context(), clinic); err != nil {
		return mapError(err, "Clinic")
	}
	return response.Success(c, http.StatusCreated, "Clinic created successfully", clinic)
}

func (h *Handler) UpdateClinic(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req clinicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	clinic, err := h.svc.UpdateClinic(c.Request().Context(), id, req.apply)
	if err != nil {
		return mapError(err, "Clinic")
	}
	return response.Success(c, http.StatusOK, "Clinic updated successfully", clinic)
}

func (h *Handler) DeleteClinic(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteClinic(c.Request().Context(), id); err != nil {
		return mapError(err, "Clinic")
	}
	return response.Success(c, http.StatusOK, "Clinic deactivated successfully", nil)
}

// -- Speciality Handlers --

func (h *Handler) ListSpecialities(c echo.Context) error {
	p := pagination.FromContext(c)
	f := SpecialityFilter{Name: c.QueryParam("search")}
	active, err := boolQuery(c, "is_active")
	if err != nil {
		return err
	}
	f.IsActive = active
	list, total, err := h.svc.ListSpecialities(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return mapError(err, "Speciality")
	}
	return response.Success(c, http.StatusOK, "", pagination.NewResponse(list, total, p.Limit, p.Offset))
}

func (h *Handler) GetSpeciality(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	sp, err := h.svc.GetSpeciality(c.Request().Context(), id)
	if err != nil {
		return mapError(err, "Speciality")
	}
	return response.Success(c, http.StatusOK, "", sp)
}

func (h *Handler) SpecialityDoctors(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	primary, err := boolQuery(c, "is_primary")
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	sp, doctors, total, err := h.svc.SpecialityDoctors(c.Request().Context(), id, primary, p.Limit, p.Offset)
	if err != nil {
		return mapError(err, "Speciality")
	}
	return response.Success(c, http.StatusOK, "", map[string]interface{}{
		"speciality": sp,
		"doctors":    pagination.NewResponse(doctors, total, p.Limit, p.Offset),
	})
}

type specialityRequest struct {
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"is_active"`
}

func (r specialityRequest) apply(sp *Speciality) {
	setString(&sp.Name, r.Name)
	setString(&sp.Code, r.Code)
	if r.Description != nil {
		sp.Description = r.Description
	}
	if r.IsActive != nil {
		sp.IsActive = *r.IsActive
	}
}

func (h *Handler) CreateSpeciality(c echo.Context) error {
	var req specialityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sp := &Speciality{}
	req.apply(sp)
	if err := h.svc.CreateSpeciality(c.Request().Context(), sp); err != nil {
		return mapError(err, "Speciality")
	}
	return response.Success(c, http.StatusCreated, "Speciality created successfully", sp)
}

func (h *Handler) UpdateSpeciality(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req specialityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sp, err := h.svc.UpdateSpeciality(c.Request().Context(), id, req.apply)
	if err != nil {
		return mapError(err, "Speciality")
	}
	return response.Success(c, http.StatusOK, "Speciality updated successfully", sp)
}

func (h *Handler) DeleteSpeciality(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSpeciality(c.Request().Context(), id); err != nil {
		return mapError(err, "Speciality")
	}
	return response.Success(c, http.StatusOK, "Speciality deactivated successfully", nil)
}

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	p := pagination.FromContext(c)
	f := DoctorFilter{Name: c.QueryParam("name")}
	var err error
	if f.SpecialityID, err = uuidQuery(c, "speciality_id"); err != nil {
		return err
	}
	if f.ClinicID, err = uuidQuery(c, "clinic_id"); err != nil {
		return err
	}
	if f.IsActive, err = boolQuery(c, "is_active"); err != nil {
		return err
	}
	if f.IsAvailable, err = boolQuery(c, "is_available"); err != nil {
		return err
	}
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusOK, "", pagination.NewResponse(doctors, total, p.Limit, p.Offset))
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusOK, "", d)
}

type doctorRequest struct {
	FirstName         *string     `json:"first_name"`
	LastName          *string     `json:"last_name"`
	Email             *string     `json:"email"`
	Phone             *string     `json:"phone"`
	GMCNumber         *string     `json:"gmc_number"`
	DateOfBirth       *string     `json:"date_of_birth"`
	Gender            *string     `json:"gender"`
	Qualifications    *string     `json:"qualifications"`
	YearsOfExperience *int        `json:"years_of_experience"`
	Bio               *string     `json:"bio"`
	IsActive          *bool       `json:"is_active"`
	IsAvailable       *bool       `json:"is_available"`
	SpecialityIDs     []uuid.UUID `json:"speciality_ids"`
	ClinicIDs         []uuid.UUID `json:"clinic_ids"`
}

// dateOfBirth parses the optional date ahead of apply so a bad value is
// reported as a field error.
func (r doctorRequest) dateOfBirth() (*time.Time, error) {
	if r.DateOfBirth == nil || *r.DateOfBirth == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *r.DateOfBirth)
	if err != nil {
		v := response.NewValidationError()
		v.Add("date_of_birth", "The date of birth is not a valid date.")
		return nil, v.Err()
	}
	return &t, nil
}

func (r doctorRequest) patch(dob *time.Time) func(*Doctor) {
	return func(d *Doctor) {
		setString(&d.FirstName, r.FirstName)
		setString(&d.LastName, r.LastName)
		setString(&d.Email, r.Email)
		setString(&d.GMCNumber, r.GMCNumber)
		if r.Phone != nil {
			d.Phone = r.Phone
		}
		if dob != nil {
			d.DateOfBirth = dob
		}
		if r.Gender != nil {
			d.Gender = r.Gender
		}
		if r.Qualifications != nil {
			d.Qualifications = r.Qualifications
		}
		if r.YearsOfExperience != nil {
			d.YearsOfExperience = *r.YearsOfExperience
		}
		if r.Bio != nil {
			d.Bio = r.Bio
		}
		if r.IsActive != nil {
			d.IsActive = *r.IsActive
		}
		if r.IsAvailable != nil {
			d.IsAvailable = *r.IsAvailable
		}
	}
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	var req doctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dob, err := req.dateOfBirth()
	if err != nil {
		return err
	}
	d := &Doctor{}
	req.patch(dob)(d)
	created, err := h.svc.CreateDoctor(c.Request().Context(), NewDoctor{
		Doctor:        d,
		SpecialityIDs: req.SpecialityIDs,
		ClinicIDs:     req.ClinicIDs,
	})
	if err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusCreated, "Doctor created successfully", created)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req doctorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	dob, err := req.dateOfBirth()
	if err != nil {
		return err
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, req.patch(dob))
	if err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusOK, "Doctor updated successfully", d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusOK, "Doctor deactivated successfully", nil)
}

type attachSpecialitiesRequest struct {
	SpecialityIDs     []uuid.UUID `json:"speciality_ids"`
	CertificationDate string      `json:"certification_date"`
	CertificationBody string      `json:"certification_body"`
	IsPrimary         *uuid.UUID  `json:"is_primary"`
}

func (h *Handler) AttachSpecialities(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req attachSpecialitiesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	certDate, err := optionalDate("certification_date", req.CertificationDate)
	if err != nil {
		return err
	}
	d, err := h.svc.AttachSpecialities(c.Request().Context(), id, SpecialityAttachment{
		SpecialityIDs:     req.SpecialityIDs,
		CertificationDate: certDate,
		CertificationBody: req.CertificationBody,
		PrimaryID:         req.IsPrimary,
	})
	if err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusOK, "Specialities attached successfully", d)
}

type attachClinicsRequest struct {
	ClinicIDs []uuid.UUID `json:"clinic_ids"`
	StartDate string      `json:"start_date"`
	Status    string      `json:"status"`
}

func (h *Handler) AttachClinics(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req attachClinicsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	start, err := optionalDate("start_date", req.StartDate)
	if err != nil {
		return err
	}
	d, err := h.svc.AttachClinics(c.Request().Context(), id, ClinicAttachment{
		ClinicIDs: req.ClinicIDs,
		StartDate: start,
		Status:    req.Status,
	})
	if err != nil {
		return mapError(err, "Doctor")
	}
	return response.Success(c, http.StatusOK, "Clinics attached successfully", d)
}

// -- helpers --

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		v := response.NewValidationError()
		v.Add(name, "The %s must be an integer.", name)
		return 0, v.Err()
	}
	return n, nil
}

func boolQuery(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		v := response.NewValidationError()
		v.Add(name, "The %s field must be true or false.", name)
		return nil, v.Err()
	}
	return &b, nil
}

func uuidQuery(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		v := response.NewValidationError()
		v.Add(name, "The selected %s is invalid.", name)
		return nil, v.Err()
	}
	return &id, nil
}

func optionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		v := response.NewValidationError()
		v.Add(field, "The %s is not a valid date.", field)
		return nil, v.Err()
	}
	return &t, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func mapError(err error, resource string) error {
	var ve *response.ValidationError
	switch {
	case errors.As(err, &ve):
		return err
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, resource+" not found")
	case errors.Is(err, ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, resource+" already exists")
	default:
		return err
	}
}
