package clinic

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func getRequest(e *echo.Echo, target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_SearchClinics(t *testing.T) {
	h, svc, e := newTestHandler()
	seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")

	c, rec := getRequest(e, "/api/v1/clinics/search?postcode=sw1a")
	if err := h.SearchClinics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var clinics []Clinic
	decode(t, rec, &clinics)
	if len(clinics) != 1 {
		t.Errorf("expected 1 clinic, got %d", len(clinics))
	}
}

func TestHandler_SearchClinicsEmptyIsArray(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := getRequest(e, "/api/v1/clinics/search?name=nothing")
	if err := h.SearchClinics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestHandler_NearbyClinicsRequiresPostcode(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := getRequest(e, "/api/v1/clinics/nearby")
	err := h.NearbyClinics(c)
	if err == nil {
		t.Fatal("expected error")
	}
	fieldErrors(t, err)
}

func TestHandler_NearbyClinics(t *testing.T) {
	h, svc, e := newTestHandler()
	seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")

	c, rec := getRequest(e, "/api/v1/clinics/nearby?postcode=sw1a&radius=5")
	if err := h.NearbyClinics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res NearbyResult
	decode(t, rec, &res)
	if res.RadiusMiles != 5 || res.SearchPostcode != "SW1A" || len(res.Clinics) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHandler_ListClinicsPaginated(t *testing.T) {
	h, svc, e := newTestHandler()
	for _, name := range []string{"A Surgery", "B Surgery", "C Surgery"} {
		seedClinic(t, svc, name, "M1 1AA")
	}

	c, rec := getRequest(e, "/api/v1/clinics?per_page=2&page=2")
	if err := h.ListClinics(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data        []Clinic `json:"data"`
		Total       int      `json:"total"`
		CurrentPage int      `json:"current_page"`
		LastPage    int      `json:"last_page"`
	}
	decode(t, rec, &page)
	if page.Total != 3 || page.CurrentPage != 2 || page.LastPage != 2 {
		t.Errorf("unexpected page %+v", page)
	}
	if len(page.Data) != 1 || page.Data[0].Name != "C Surgery" {
		t.Errorf("unexpected data %+v", page.Data)
	}
}

func TestHandler_GetClinicNotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := getRequest(e, "/")
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetClinic(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
	if he.Message != "Clinic not found" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestHandler_GetClinicBadID(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := getRequest(e, "/")
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetClinic(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ClinicDoctors(t *testing.T) {
	h, svc, e := newTestHandler()
	clinic := seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")
	seedDoctor(t, svc, "Patel", "1234567", nil, []uuid.UUID{clinic.ID})

	c, rec := getRequest(e, "/")
	c.SetParamNames("id")
	c.SetParamValues(clinic.ID.String())
	if err := h.ClinicDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var data struct {
		Clinic  Clinic   `json:"clinic"`
		Doctors []Doctor `json:"doctors"`
	}
	decode(t, rec, &data)
	if data.Clinic.ID != clinic.ID || len(data.Doctors) != 1 {
		t.Errorf("unexpected data %+v", data)
	}
}

func TestHandler_ListDoctorsBadFilter(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := getRequest(e, "/api/v1/doctors?speciality_id=abc")
	if err := h.ListDoctors(c); err == nil {
		t.Fatal("expected error")
	} else if _, ok := fieldErrors(t, err)["speciality_id"]; !ok {
		t.Error("expected speciality_id error")
	}
}

func TestHandler_ListDoctorsByClinic(t *testing.T) {
	h, svc, e := newTestHandler()
	clinic := seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")
	seedDoctor(t, svc, "Patel", "1111111", nil, []uuid.UUID{clinic.ID})
	seedDoctor(t, svc, "Jones", "2222222", nil, nil)

	c, rec := getRequest(e, "/api/v1/doctors?clinic_id="+clinic.ID.String())
	if err := h.ListDoctors(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data  []Doctor `json:"data"`
		Total int      `json:"total"`
	}
	decode(t, rec, &page)
	if page.Total != 1 || page.Data[0].LastName != "Patel" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestHandler_CreateDoctor(t *testing.T) {
	h, svc, e := newTestHandler()
	sp := seedSpeciality(t, svc, "Cardiology", "CARD")
	body := `{"first_name":"Sam","last_name":"Okafor","email":"Sam.Okafor@example.nhs.uk",
		"gmc_number":"7654321","date_of_birth":"1980-05-17","speciality_ids":["` + sp.ID.String() + `"]}`

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/admin/doctors", body)
	if err := h.CreateDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var d Doctor
	env := decode(t, rec, &d)
	if env.Message != "Doctor created successfully" {
		t.Errorf("unexpected message %q", env.Message)
	}
	if d.Email != "sam.okafor@example.nhs.uk" {
		t.Errorf("expected lower-cased email, got %s", d.Email)
	}
	if d.DateOfBirth == nil || d.DateOfBirth.Year() != 1980 {
		t.Errorf("unexpected date of birth %v", d.DateOfBirth)
	}
	if len(d.Specialities) != 1 || !d.Specialities[0].IsPrimary {
		t.Errorf("expected one primary speciality, got %+v", d.Specialities)
	}
}

func TestHandler_CreateDoctorBadDate(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonRequest(e, http.MethodPost, "/api/v1/admin/doctors", `{"date_of_birth":"17/05/1980"}`)
	err := h.CreateDoctor(c)
	if _, ok := fieldErrors(t, err)["date_of_birth"]; !ok {
		t.Error("expected date_of_birth error")
	}
}

func TestHandler_CreateSpecialityDuplicate(t *testing.T) {
	h, svc, e := newTestHandler()
	seedSpeciality(t, svc, "Cardiology", "CARD")

	c, _ := jsonRequest(e, http.MethodPost, "/api/v1/admin/specialities", `{"name":"Cardiac","code":"CARD"}`)
	err := h.CreateSpeciality(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_UpdateClinicPartial(t *testing.T) {
	h, svc, e := newTestHandler()
	clinic := seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")

	c, rec := jsonRequest(e, http.MethodPut, "/", `{"phone":"020 7946 0000"}`)
	c.SetParamNames("id")
	c.SetParamValues(clinic.ID.String())
	if err := h.UpdateClinic(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Clinic
	decode(t, rec, &got)
	if got.Name != "Riverside Surgery" {
		t.Errorf("expected name to be kept, got %s", got.Name)
	}
	if got.Phone == nil || *got.Phone != "020 7946 0000" {
		t.Errorf("expected phone to be set, got %v", got.Phone)
	}
}

func TestHandler_AttachClinicsBadStartDate(t *testing.T) {
	h, svc, e := newTestHandler()
	d := seedDoctor(t, svc, "Patel", "1234567", nil, nil)

	c, _ := jsonRequest(e, http.MethodPost, "/", `{"clinic_ids":[],"start_date":"tomorrow"}`)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	err := h.AttachClinics(c)
	if _, ok := fieldErrors(t, err)["start_date"]; !ok {
		t.Error("expected start_date error")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, _, e := newTestHandler()
	api := e.Group("/api/v1")
	h.RegisterRoutes(api)

	routes := make(map[string]bool)
	for _, r := range e.Routes() {
		routes[r.Method+":"+r.Path] = true
	}

	expected := []string{
		"GET:/api/v1/clinics",
		"GET:/api/v1/clinics/search",
		"GET:/api/v1/clinics/nearby",
		"GET:/api/v1/clinics/:id",
		"GET:/api/v1/clinics/:id/doctors",
		"GET:/api/v1/specialities",
		"GET:/api/v1/specialities/:id",
		"GET:/api/v1/specialities/:id/doctors",
		"GET:/api/v1/doctors",
		"GET:/api/v1/doctors/:id",
		"POST:/api/v1/admin/specialities",
		"PUT:/api/v1/admin/specialities/:id",
		"DELETE:/api/v1/admin/specialities/:id",
		"POST:/api/v1/admin/doctors",
		"PUT:/api/v1/admin/doctors/:id",
		"DELETE:/api/v1/admin/doctors/:id",
		"POST:/api/v1/admin/doctors/:id/specialities",
		"POST:/api/v1/admin/doctors/:id/clinics",
		"POST:/api/v1/admin/clinics",
		"PUT:/api/v1/admin/clinics/:id",
		"DELETE:/api/v1/admin/clinics/:id",
	}
	for _, path := range expected {
		if !routes[path] {
			t.Errorf("missing route: %s", path)
		}
	}
}
