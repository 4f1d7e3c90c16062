package clinic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/myhomebp/myhomebp/internal/platform/db"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

// -- Mock Repositories --

type mockClinicRepo struct {
	clinics map[uuid.UUID]*Clinic
}

func newMockClinicRepo() *mockClinicRepo {
	return &mockClinicRepo{clinics: make(map[uuid.UUID]*Clinic)}
}

func (m *mockClinicRepo) Create(_ context.Context, c *Clinic) error {
	c.ID = uuid.New()
	cp := *c
	m.clinics[c.ID] = &cp
	return nil
}

func (m *mockClinicRepo) GetByID(_ context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, fmt.Errorf("get clinic: %w", db.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (m *mockClinicRepo) Update(_ context.Context, c *Clinic) error {
	if _, ok := m.clinics[c.ID]; !ok {
		return fmt.Errorf("update clinic: %w", db.ErrNotFound)
	}
	cp := *c
	m.clinics[c.ID] = &cp
	return nil
}

func (m *mockClinicRepo) Search(_ context.Context, f ClinicFilter, limit, offset int) ([]*Clinic, int, error) {
	var matched []*Clinic
	for _, c := range m.clinics {
		if !c.IsActive {
			continue
		}
		if f.Postcode != "" && !strings.Contains(c.Postcode, strings.ToUpper(f.Postcode)) {
			continue
		}
		if f.Name != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		cp := *c
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return window(matched, limit, offset), len(matched), nil
}

type mockSpecialityRepo struct {
	specialities map[uuid.UUID]*Speciality
}

func newMockSpecialityRepo() *mockSpecialityRepo {
	return &mockSpecialityRepo{specialities: make(map[uuid.UUID]*Speciality)}
}

func (m *mockSpecialityRepo) Create(_ context.Context, s *Speciality) error {
	for _, existing := range m.specialities {
		if existing.Code == s.Code {
			return fmt.Errorf("create speciality: %w", db.ErrDuplicate)
		}
	}
	s.ID = uuid.New()
	cp := *s
	m.specialities[s.ID] = &cp
	return nil
}

func (m *mockSpecialityRepo) GetByID(_ context.Context, id uuid.UUID) (*Speciality, error) {
	s, ok := m.specialities[id]
	if !ok {
		return nil, fmt.Errorf("get speciality: %w", db.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (m *mockSpecialityRepo) Update(_ context.Context, s *Speciality) error {
	cp := *s
	m.specialities[s.ID] = &cp
	return nil
}

func (m *mockSpecialityRepo) List(_ context.Context, f SpecialityFilter, limit, offset int) ([]*Speciality, int, error) {
	var out []*Speciality
	for _, s := range m.specialities {
		if f.IsActive != nil && s.IsActive != *f.IsActive {
			continue
		}
		if f.Name != "" && !strings.Contains(s.Name, f.Name) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return window(out, limit, offset), len(out), nil
}

type mockDoctorRepo struct {
	doctors      map[uuid.UUID]*Doctor
	specialities *mockSpecialityRepo
	links        map[uuid.UUID]map[uuid.UUID]SpecialityLink
	assignments  map[uuid.UUID]map[uuid.UUID]ClinicLink
}

func newMockDoctorRepo(specialities *mockSpecialityRepo) *mockDoctorRepo {
	return &mockDoctorRepo{
		doctors:      make(map[uuid.UUID]*Doctor),
		specialities: specialities,
		links:        make(map[uuid.UUID]map[uuid.UUID]SpecialityLink),
		assignments:  make(map[uuid.UUID]map[uuid.UUID]ClinicLink),
	}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	for _, existing := range m.doctors {
		if existing.GMCNumber == d.GMCNumber || existing.Email == d.Email {
			return fmt.Errorf("create doctor: %w", db.ErrDuplicate)
		}
	}
	d.ID = uuid.New()
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, fmt.Errorf("get doctor: %w", db.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	cp := *d
	cp.Specialities = nil
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) List(_ context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.doctors {
		if f.SpecialityID != nil {
			link, ok := m.links[d.ID][*f.SpecialityID]
			if !ok || (f.PrimaryOnly != nil && link.IsPrimary != *f.PrimaryOnly) {
				continue
			}
		}
		if f.ClinicID != nil {
			if _, ok := m.assignments[*f.ClinicID][d.ID]; !ok {
				continue
			}
		}
		if f.IsActive != nil && d.IsActive != *f.IsActive {
			continue
		}
		if f.IsAvailable != nil && d.IsAvailable != *f.IsAvailable {
			continue
		}
		if f.Name != "" && !strings.Contains(d.FirstName+" "+d.LastName, f.Name) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return window(out, limit, offset), len(out), nil
}

func (m *mockDoctorRepo) ListByClinic(_ context.Context, clinicID uuid.UUID) ([]*Doctor, error) {
	var out []*Doctor
	for doctorID, l := range m.assignments[clinicID] {
		d := m.doctors[doctorID]
		if l.Status != AssignmentActive || !d.IsActive || !d.IsAvailable {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockDoctorRepo) AttachSpeciality(_ context.Context, l SpecialityLink) error {
	if m.links[l.DoctorID] == nil {
		m.links[l.DoctorID] = make(map[uuid.UUID]SpecialityLink)
	}
	m.links[l.DoctorID][l.SpecialityID] = l
	return nil
}

func (m *mockDoctorRepo) AttachClinic(_ context.Context, l ClinicLink) error {
	if m.assignments[l.ClinicID] == nil {
		m.assignments[l.ClinicID] = make(map[uuid.UUID]ClinicLink)
	}
	m.assignments[l.ClinicID][l.DoctorID] = l
	return nil
}

func (m *mockDoctorRepo) SpecialitiesOf(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]DoctorSpeciality, error) {
	out := make(map[uuid.UUID][]DoctorSpeciality)
	for _, id := range ids {
		for sid, l := range m.links[id] {
			sp := m.specialities.specialities[sid]
			body := l.CertificationBody
			date := l.CertificationDate
			out[id] = append(out[id], DoctorSpeciality{
				SpecialityID:      sid,
				Name:              sp.Name,
				IsPrimary:         l.IsPrimary,
				CertificationDate: &date,
				CertificationBody: &body,
			})
		}
	}
	return out, nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// -- Fixtures --

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type testRepos struct {
	clinics      *mockClinicRepo
	specialities *mockSpecialityRepo
	doctors      *mockDoctorRepo
}

func newTestService() (*Service, testRepos) {
	specialities := newMockSpecialityRepo()
	repos := testRepos{
		clinics:      newMockClinicRepo(),
		specialities: specialities,
		doctors:      newMockDoctorRepo(specialities),
	}
	svc := NewService(repos.clinics, repos.specialities, repos.doctors)
	svc.SetClock(func() time.Time { return testNow })
	return svc, repos
}

func seedClinic(t *testing.T, svc *Service, name, postcode string) *Clinic {
	t.Helper()
	c := &Clinic{Name: name, Address: "1 High Street", Postcode: postcode}
	if err := svc.CreateClinic(context.Background(), c); err != nil {
		t.Fatalf("seed clinic: %v", err)
	}
	return c
}

func seedSpeciality(t *testing.T, svc *Service, name, code string) *Speciality {
	t.Helper()
	sp := &Speciality{Name: name, Code: code}
	if err := svc.CreateSpeciality(context.Background(), sp); err != nil {
		t.Fatalf("seed speciality: %v", err)
	}
	return sp
}

func seedDoctor(t *testing.T, svc *Service, last, gmc string, specialityIDs, clinicIDs []uuid.UUID) *Doctor {
	t.Helper()
	d, err := svc.CreateDoctor(context.Background(), NewDoctor{
		Doctor: &Doctor{
			FirstName: "Alex",
			LastName:  last,
			Email:     strings.ToLower(last) + "@example.nhs.uk",
			GMCNumber: gmc,
		},
		SpecialityIDs: specialityIDs,
		ClinicIDs:     clinicIDs,
	})
	if err != nil {
		t.Fatalf("seed doctor: %v", err)
	}
	return d
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var ve *response.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return ve.Fields
}

// -- Clinic Tests --

func TestService_CreateClinic(t *testing.T) {
	svc, _ := newTestService()
	c := seedClinic(t, svc, "Riverside Surgery", " sw1a 1aa ")

	if c.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if c.Postcode != "SW1A 1AA" {
		t.Errorf("expected normalised postcode, got %q", c.Postcode)
	}
	if c.Type != TypeNHS {
		t.Errorf("expected default type NHS, got %s", c.Type)
	}
	if !c.IsActive {
		t.Error("expected new clinic to be active")
	}
}

func TestService_CreateClinicValidation(t *testing.T) {
	svc, _ := newTestService()
	lat := 91.0
	err := svc.CreateClinic(context.Background(), &Clinic{Type: "Charity", Latitude: &lat})
	fields := fieldErrors(t, err)
	for _, f := range []string{"name", "address", "postcode", "type", "latitude"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected error for %s", f)
		}
	}
}

func TestService_SearchClinics(t *testing.T) {
	svc, _ := newTestService()
	seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")
	seedClinic(t, svc, "Hilltop Practice", "M1 2AB")

	got, err := svc.SearchClinics(context.Background(), ClinicFilter{Postcode: "sw1a"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Riverside Surgery" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestService_SearchClinicsLimitBounds(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.SearchClinics(context.Background(), ClinicFilter{}, MaxSearchLimit+1)
	if _, ok := fieldErrors(t, err)["limit"]; !ok {
		t.Error("expected limit error")
	}
	_, err = svc.SearchClinics(context.Background(), ClinicFilter{Type: "Charity"}, 0)
	if _, ok := fieldErrors(t, err)["type"]; !ok {
		t.Error("expected type error")
	}
}

func TestService_NearbyClinics(t *testing.T) {
	svc, _ := newTestService()
	for i := 0; i < 7; i++ {
		seedClinic(t, svc, fmt.Sprintf("Clinic %d", i), "LS1 4AP")
	}

	res, err := svc.NearbyClinics(context.Background(), "ls1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Clinics) != DefaultNearbyLimit {
		t.Errorf("expected %d clinics, got %d", DefaultNearbyLimit, len(res.Clinics))
	}
	if res.SearchPostcode != "LS1" {
		t.Errorf("expected upper-cased postcode, got %s", res.SearchPostcode)
	}
	if res.RadiusMiles != DefaultRadiusMiles {
		t.Errorf("expected default radius, got %d", res.RadiusMiles)
	}
}

func TestService_NearbyClinicsValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.NearbyClinics(context.Background(), " ", 51, 21)
	fields := fieldErrors(t, err)
	for _, f := range []string{"postcode", "radius", "limit"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected error for %s", f)
		}
	}
}

func TestService_GetClinicInactiveIsNotFound(t *testing.T) {
	svc, _ := newTestService()
	c := seedClinic(t, svc, "Closed Surgery", "B1 1AA")
	if err := svc.DeleteClinic(context.Background(), c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetClinic(context.Background(), c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ClinicDoctorsOnlyActiveAssignments(t *testing.T) {
	svc, repos := newTestService()
	c := seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")
	sp := seedSpeciality(t, svc, "Cardiology", "card")
	active := seedDoctor(t, svc, "Patel", "1234567", []uuid.UUID{sp.ID}, []uuid.UUID{c.ID})
	suspended := seedDoctor(t, svc, "Jones", "7654321", nil, []uuid.UUID{c.ID})
	if _, err := svc.AttachClinics(context.Background(), suspended.ID, ClinicAttachment{
		ClinicIDs: []uuid.UUID{c.ID},
		Status:    AssignmentSuspended,
	}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	_, doctors, err := svc.ClinicDoctors(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doctors) != 1 || doctors[0].ID != active.ID {
		t.Fatalf("expected only the active doctor, got %d", len(doctors))
	}
	if len(doctors[0].Specialities) != 1 || doctors[0].Specialities[0].Name != "Cardiology" {
		t.Errorf("expected specialities to be loaded, got %+v", doctors[0].Specialities)
	}
	if got := repos.doctors.assignments[c.ID][active.ID].StartDate; !got.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected start date today, got %v", got)
	}
}

// -- Speciality Tests --

func TestService_CreateSpecialityNormalisesCode(t *testing.T) {
	svc, _ := newTestService()
	sp := seedSpeciality(t, svc, "Cardiology", " card ")
	if sp.Code != "CARD" {
		t.Errorf("expected CARD, got %q", sp.Code)
	}
	if !sp.IsActive {
		t.Error("expected active")
	}
}

func TestService_CreateSpecialityDuplicate(t *testing.T) {
	svc, _ := newTestService()
	seedSpeciality(t, svc, "Cardiology", "CARD")
	err := svc.CreateSpeciality(context.Background(), &Speciality{Name: "Cardiac", Code: "card"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
}

func TestService_SpecialityDoctorsPrimaryFilter(t *testing.T) {
	svc, _ := newTestService()
	card := seedSpeciality(t, svc, "Cardiology", "CARD")
	neph := seedSpeciality(t, svc, "Nephrology", "NEPH")
	seedDoctor(t, svc, "Patel", "1111111", []uuid.UUID{card.ID, neph.ID}, nil)
	seedDoctor(t, svc, "Jones", "2222222", []uuid.UUID{neph.ID}, nil)

	yes := true
	_, doctors, total, err := svc.SpecialityDoctors(context.Background(), neph.ID, &yes, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || doctors[0].LastName != "Jones" {
		t.Errorf("expected only Jones as primary nephrologist, got %d", total)
	}

	_, _, total, err = svc.SpecialityDoctors(context.Background(), neph.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 doctors, got %d", total)
	}
}

func TestService_DeleteSpecialityDeactivates(t *testing.T) {
	svc, repos := newTestService()
	sp := seedSpeciality(t, svc, "Cardiology", "CARD")
	if err := svc.DeleteSpeciality(context.Background(), sp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if repos.specialities.specialities[sp.ID].IsActive {
		t.Error("expected speciality to be inactive")
	}
}

// -- Doctor Tests --

func TestService_CreateDoctorFirstSpecialityIsPrimary(t *testing.T) {
	svc, repos := newTestService()
	card := seedSpeciality(t, svc, "Cardiology", "CARD")
	neph := seedSpeciality(t, svc, "Nephrology", "NEPH")
	d := seedDoctor(t, svc, "Patel", "1234567", []uuid.UUID{card.ID, neph.ID}, nil)

	links := repos.doctors.links[d.ID]
	if !links[card.ID].IsPrimary || links[neph.ID].IsPrimary {
		t.Errorf("expected only the first speciality to be primary: %+v", links)
	}
	if links[card.ID].CertificationBody != DefaultCertificationBody {
		t.Errorf("expected GMC, got %s", links[card.ID].CertificationBody)
	}
	if !d.IsActive || !d.IsAvailable {
		t.Error("expected new doctor to be active and available")
	}
	if len(d.Specialities) != 2 {
		t.Errorf("expected 2 specialities, got %d", len(d.Specialities))
	}
}

func TestService_CreateDoctorValidation(t *testing.T) {
	svc, _ := newTestService()
	gender := "unknown"
	_, err := svc.CreateDoctor(context.Background(), NewDoctor{Doctor: &Doctor{
		Email:             "not-an-email",
		Gender:            &gender,
		YearsOfExperience: 51,
	}})
	fields := fieldErrors(t, err)
	for _, f := range []string{"first_name", "last_name", "gmc_number", "email", "gender", "years_of_experience"} {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected error for %s", f)
		}
	}
}

func TestService_CreateDoctorUnknownSpeciality(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.CreateDoctor(context.Background(), NewDoctor{
		Doctor:        &Doctor{FirstName: "Alex", LastName: "Patel", Email: "patel@example.nhs.uk", GMCNumber: "1234567"},
		SpecialityIDs: []uuid.UUID{uuid.New()},
	})
	if _, ok := fieldErrors(t, err)["speciality_ids"]; !ok {
		t.Error("expected speciality_ids error")
	}
}

func TestService_CreateDoctorRunsInTx(t *testing.T) {
	svc, _ := newTestService()
	calls := 0
	svc.SetTx(func(ctx context.Context, fn func(ctx context.Context) error) error {
		calls++
		return fn(ctx)
	})
	seedDoctor(t, svc, "Patel", "1234567", nil, nil)
	if calls != 1 {
		t.Errorf("expected 1 transaction, got %d", calls)
	}
}

func TestService_AttachSpecialitiesPrimaryMustBeAttached(t *testing.T) {
	svc, _ := newTestService()
	d := seedDoctor(t, svc, "Patel", "1234567", nil, nil)
	sp := seedSpeciality(t, svc, "Cardiology", "CARD")
	other := uuid.New()

	_, err := svc.AttachSpecialities(context.Background(), d.ID, SpecialityAttachment{
		SpecialityIDs: []uuid.UUID{sp.ID},
		PrimaryID:     &other,
	})
	if _, ok := fieldErrors(t, err)["is_primary"]; !ok {
		t.Error("expected is_primary error")
	}
}

func TestService_AttachSpecialitiesDefaults(t *testing.T) {
	svc, repos := newTestService()
	d := seedDoctor(t, svc, "Patel", "1234567", nil, nil)
	sp := seedSpeciality(t, svc, "Cardiology", "CARD")

	got, err := svc.AttachSpecialities(context.Background(), d.ID, SpecialityAttachment{
		SpecialityIDs: []uuid.UUID{sp.ID},
		PrimaryID:     &sp.ID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	link := repos.doctors.links[d.ID][sp.ID]
	if !link.IsPrimary || link.CertificationBody != "GMC" {
		t.Errorf("unexpected link %+v", link)
	}
	if !link.CertificationDate.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected today's date, got %v", link.CertificationDate)
	}
	if len(got.Specialities) != 1 {
		t.Errorf("expected 1 speciality, got %d", len(got.Specialities))
	}
}

func TestService_AttachClinicsValidation(t *testing.T) {
	svc, _ := newTestService()
	d := seedDoctor(t, svc, "Patel", "1234567", nil, nil)
	_, err := svc.AttachClinics(context.Background(), d.ID, ClinicAttachment{Status: "retired"})
	fields := fieldErrors(t, err)
	if _, ok := fields["clinic_ids"]; !ok {
		t.Error("expected clinic_ids error")
	}
	if _, ok := fields["status"]; !ok {
		t.Error("expected status error")
	}
}

func TestService_AttachClinicsUnknownDoctor(t *testing.T) {
	svc, _ := newTestService()
	c := seedClinic(t, svc, "Riverside Surgery", "SW1A 1AA")
	_, err := svc.AttachClinics(context.Background(), uuid.New(), ClinicAttachment{ClinicIDs: []uuid.UUID{c.ID}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_DeleteDoctor(t *testing.T) {
	svc, _ := newTestService()
	d := seedDoctor(t, svc, "Patel", "1234567", nil, nil)
	if err := svc.DeleteDoctor(context.Background(), d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := svc.GetDoctor(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsActive || got.IsAvailable {
		t.Error("expected doctor to be inactive and unavailable")
	}
}

func TestDoctor_FullName(t *testing.T) {
	d := &Doctor{FirstName: "Sam", LastName: "Okafor"}
	if got := d.FullName(); got != "Dr. Sam Okafor" {
		t.Errorf("unexpected name %q", got)
	}
}
