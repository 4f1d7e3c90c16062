package patient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/myhomebp/myhomebp/internal/platform/auth"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func publicContext(e *echo.Echo, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func patientContext(e *echo.Echo, req *http.Request, patientID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: patientID.String()},
		Roles:            []string{auth.RolePatient},
	}
	req = req.WithContext(auth.WithClaims(req.Context(), claims))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
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

func registerBody(f *fixture) string {
	return `{
		"first_name": "Jo", "surname": "Bloggs", "date_of_birth": "1970-05-01",
		"address": "1 High Street", "mobile_phone": "07700900123",
		"email": "jo@example.com", "pin": "1234",
		"clinic_id": "` + f.clinicID.String() + `", "doctor_id": "` + f.doctorID.String() + `",
		"terms_accepted": true, "data_sharing_consent": true
	}`
}

func TestHandler_Register(t *testing.T) {
	h, f, e := newTestHandler()
	c, rec := publicContext(e, jsonRequest(http.MethodPost, "/api/v1/auth/register", registerBody(f)))

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var data struct {
		Patient map[string]interface{} `json:"patient"`
		Token   string                 `json:"token"`
	}
	env := decode(t, rec, &data)
	if env.Message != "Patient registered successfully" {
		t.Errorf("unexpected message %q", env.Message)
	}
	if data.Token == "" {
		t.Error("expected a token")
	}
	if _, leaked := data.Patient["pin_hash"]; leaked {
		t.Error("pin hash must not be serialised")
	}
	if data.Patient["first_name"] != "Jo" {
		t.Errorf("expected flattened patient fields, got %v", data.Patient)
	}
	if _, ok := data.Patient["clinic"].(map[string]interface{}); !ok {
		t.Errorf("expected clinic object, got %v", data.Patient["clinic"])
	}
}

func TestHandler_RegisterBadDate(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := publicContext(e, jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"date_of_birth":"01/05/1970"}`))
	err := h.Register(c)
	if _, ok := fieldErrors(t, err)["date_of_birth"]; !ok {
		t.Error("expected date_of_birth error")
	}
}

func TestHandler_LoginInvalidCredentials(t *testing.T) {
	h, f, e := newTestHandler()
	f.register(t)

	c, _ := publicContext(e, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"mobile_phone":"07700900123","pin":"0000"}`))
	err := h.Login(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if he.Message != "Invalid credentials" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestHandler_Login(t *testing.T) {
	h, f, e := newTestHandler()
	f.register(t)

	c, rec := publicContext(e, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"mobile_phone":"07700900123","pin":"1234"}`))
	if err := h.Login(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := decode(t, rec, nil)
	if rec.Code != http.StatusOK || env.Message != "Login successful" {
		t.Errorf("unexpected response %d %q", rec.Code, env.Message)
	}
}

func TestHandler_MeUnauthenticated(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := publicContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	err := h.Me(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, f, e := newTestHandler()
	pid := f.register(t).Patient.ID

	c, rec := patientContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), pid)
	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var data struct {
		Patient struct {
			ID uuid.UUID `json:"id"`
		} `json:"patient"`
	}
	decode(t, rec, &data)
	if data.Patient.ID != pid {
		t.Errorf("expected patient %s, got %s", pid, data.Patient.ID)
	}
}

func TestHandler_UpdateProfile(t *testing.T) {
	h, f, e := newTestHandler()
	pid := f.register(t).Patient.ID

	c, rec := patientContext(e, jsonRequest(http.MethodPut, "/api/v1/patient/profile", `{"surname":"Smith","date_of_birth":"1971-06-02"}`), pid)
	if err := h.UpdateProfile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := decode(t, rec, nil)
	if env.Message != "Profile updated successfully" {
		t.Errorf("unexpected message %q", env.Message)
	}
	stored := f.patients.patients[pid]
	if stored.Surname != "Smith" || stored.DateOfBirth.Year() != 1971 {
		t.Errorf("expected update to be stored, got %+v", stored)
	}
}

func TestHandler_SaveClinicalDataShortNames(t *testing.T) {
	h, f, e := newTestHandler()
	pid := f.register(t).Patient.ID

	body := `{"height":175,"weight":70,"last_blood_test_date":"2024-01-15","comorbidities":["diabetes_type_2"]}`
	c, rec := patientContext(e, jsonRequest(http.MethodPost, "/api/v1/patient/clinical-data", body), pid)
	if err := h.SaveClinicalData(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var data struct {
		ClinicalData struct {
			BMI         float64 `json:"bmi"`
			BMICategory string  `json:"bmi_category"`
		} `json:"clinical_data"`
	}
	env := decode(t, rec, &data)
	if env.Message != "Clinical data saved successfully" {
		t.Errorf("unexpected message %q", env.Message)
	}
	if data.ClinicalData.BMI != 22.9 || data.ClinicalData.BMICategory != "Normal" {
		t.Errorf("unexpected clinical data %+v", data.ClinicalData)
	}
}

func TestHandler_GetClinicalDataEmpty(t *testing.T) {
	h, f, e := newTestHandler()
	pid := f.register(t).Patient.ID

	c, rec := patientContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/patient/clinical-data", nil), pid)
	if err := h.GetClinicalData(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"clinical_data":null`) {
		t.Errorf("expected null clinical data, got %s", rec.Body.String())
	}
}

func TestHandler_GetDashboard(t *testing.T) {
	h, f, e := newTestHandler()
	pid := f.register(t).Patient.ID

	c, rec := patientContext(e, httptest.NewRequest(http.MethodGet, "/api/v1/patient/dashboard", nil), pid)
	if err := h.GetDashboard(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var data map[string]interface{}
	decode(t, rec, &data)
	for _, key := range []string{"patient", "last_reading", "recent_readings", "seven_day_average"} {
		if _, ok := data[key]; !ok {
			t.Errorf("missing %s", key)
		}
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
		"POST:/api/v1/auth/register",
		"POST:/api/v1/auth/login",
		"GET:/api/v1/auth/me",
		"GET:/api/v1/patient/profile",
		"PUT:/api/v1/patient/profile",
		"GET:/api/v1/patient/clinical-data",
		"POST:/api/v1/patient/clinical-data",
		"GET:/api/v1/patient/dashboard",
	}
	for _, path := range expected {
		if !routes[path] {
			t.Errorf("missing route: %s", path)
		}
	}
}
