package clinic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhomebp/myhomebp/internal/platform/db"
)

// whereBuilder accumulates AND clauses with numbered placeholders.
type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(format string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// page appends LIMIT and OFFSET placeholders.
func (w *whereBuilder) page(limit, offset int) string {
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

// -- Clinic Repository --

type clinicRepoPG struct {
	pool *pgxpool.Pool
}

func NewClinicRepo(pool *pgxpool.Pool) ClinicRepository {
	return &clinicRepoPG{pool: pool}
}

func (r *clinicRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const clinicColumns = `id, name, address, postcode, phone, email, type,
	latitude, longitude, is_active, created_at, updated_at`

func (r *clinicRepoPG) Create(ctx context.Context, c *Clinic) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinic (id, name, address, postcode, phone, email, type, latitude, longitude, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Address, c.Postcode, c.Phone, c.Email, c.Type, c.Latitude, c.Longitude, c.IsActive,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return db.Translate("create clinic", err)
}

func (r *clinicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, err := scanClinic(r.conn(ctx).QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinic WHERE id = $1`, id))
	return c, db.Translate("get clinic", err)
}

func (r *clinicRepoPG) Update(ctx context.Context, c *Clinic) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinic SET
			name = $2, address = $3, postcode = $4, phone = $5, email = $6, type = $7,
			latitude = $8, longitude = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Name, c.Address, c.Postcode, c.Phone, c.Email, c.Type, c.Latitude, c.Longitude, c.IsActive,
	).Scan(&c.UpdatedAt)
	return db.Translate("update clinic", err)
}

func (r *clinicRepoPG) Search(ctx context.Context, f ClinicFilter, limit, offset int) ([]*Clinic, int, error) {
	w := &whereBuilder{clauses: []string{"is_active = TRUE"}}
	if f.Postcode != "" {
		w.add("postcode ILIKE $%d", "%"+strings.ToUpper(f.Postcode)+"%")
	}
	if f.Name != "" {
		w.add("name ILIKE $%d", "%"+f.Name+"%")
	}
	if f.Type != "" {
		w.add("type = $%d", f.Type)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinic`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, db.Translate("count clinics", err)
	}

	query := `SELECT ` + clinicColumns + ` FROM clinic` + w.sql() + ` ORDER BY name` + w.page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, db.Translate("search clinics", err)
	}
	defer rows.Close()

	var out []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, db.Translate("search clinics", err)
		}
		out = append(out, c)
	}
	return out, total, db.Translate("search clinics", rows.Err())
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Postcode, &c.Phone, &c.Email, &c.Type,
		&c.Latitude, &c.Longitude, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// -- Speciality Repository --

type specialityRepoPG struct {
	pool *pgxpool.Pool
}

func NewSpecialityRepo(pool *pgxpool.Pool) SpecialityRepository {
	return &specialityRepoPG{pool: pool}
}

func (r *specialityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const specialityColumns = `id, name, code, description, is_active, created_at, updated_at`

func (r *specialityRepoPG) Create(ctx context.Context, s *Speciality) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO speciality (id, name, code, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Code, s.Description, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return db.Translate("create speciality", err)
}

func (r *specialityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Speciality, error) {
	s, err := scanSpeciality(r.conn(ctx).QueryRow(ctx, `SELECT `+specialityColumns+` FROM speciality WHERE id = $1`, id))
	return s, db.Translate("get speciality", err)
}

func (r *specialityRepoPG) Update(ctx context.Context, s *Speciality) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE speciality SET name = $2, code = $3, description = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Name, s.Code, s.Description, s.IsActive,
	).Scan(&s.UpdatedAt)
	return db.Translate("update speciality", err)
}

func (r *specialityRepoPG) List(ctx context.Context, f SpecialityFilter, limit, offset int) ([]*Speciality, int, error) {
	w := &whereBuilder{}
	if f.Name != "" {
		w.add("name ILIKE $%d", "%"+f.Name+"%")
	}
	if f.IsActive != nil {
		w.add("is_active = $%d", *f.IsActive)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM speciality`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, db.Translate("count specialities", err)
	}

	query := `SELECT ` + specialityColumns + ` FROM speciality` + w.sql() + ` ORDER BY name` + w.page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, db.Translate("list specialities", err)
	}
	defer rows.Close()

	var out []*Speciality
	for rows.Next() {
		s, err := scanSpeciality(rows)
		if err != nil {
			return nil, 0, db.Translate("list specialities", err)
		}
		out = append(out, s)
	}
	return out, total, db.Translate("list specialities", rows.Err())
}

func scanSpeciality(row pgx.Row) (*Speciality, error) {
	var s Speciality
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Description, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorColumns = `d.id, d.first_name, d.last_name, d.email, d.phone, d.gmc_number,
	d.date_of_birth, d.gender, d.qualifications, d.years_of_experience, d.bio,
	d.is_active, d.is_available, d.created_at, d.updated_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (
			id, first_name, last_name, email, phone, gmc_number,
			date_of_birth, gender, qualifications, years_of_experience, bio,
			is_active, is_available
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.GMCNumber,
		d.DateOfBirth, d.Gender, d.Qualifications, d.YearsOfExperience, d.Bio,
		d.IsActive, d.IsAvailable,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	return db.Translate("create doctor", err)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctor d WHERE d.id = $1`, id))
	return d, db.Translate("get doctor", err)
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET
			first_name = $2, last_name = $3, email = $4, phone = $5, gmc_number = $6,
			date_of_birth = $7, gender = $8, qualifications = $9, years_of_experience = $10,
			bio = $11, is_active = $12, is_available = $13, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.GMCNumber,
		d.DateOfBirth, d.Gender, d.Qualifications, d.YearsOfExperience,
		d.Bio, d.IsActive, d.IsAvailable,
	).Scan(&d.UpdatedAt)
	return db.Translate("update doctor", err)
}

func (r *doctorRepoPG) List(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	w := &whereBuilder{}
	if f.Name != "" {
		w.add("(d.first_name ILIKE $%[1]d OR d.last_name ILIKE $%[1]d)", "%"+f.Name+"%")
	}
	if f.SpecialityID != nil {
		if f.PrimaryOnly != nil {
			w.args = append(w.args, *f.SpecialityID, *f.PrimaryOnly)
			w.clauses = append(w.clauses, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM doctor_speciality ds WHERE ds.doctor_id = d.id AND ds.speciality_id = $%d AND ds.is_primary = $%d)",
				len(w.args)-1, len(w.args)))
		} else {
			w.add("EXISTS (SELECT 1 FROM doctor_speciality ds WHERE ds.doctor_id = d.id AND ds.speciality_id = $%d)", *f.SpecialityID)
		}
	}
	if f.ClinicID != nil {
		w.add("EXISTS (SELECT 1 FROM clinic_doctor cd WHERE cd.doctor_id = d.id AND cd.clinic_id = $%d)", *f.ClinicID)
	}
	if f.IsActive != nil {
		w.add("d.is_active = $%d", *f.IsActive)
	}
	if f.IsAvailable != nil {
		w.add("d.is_available = $%d", *f.IsAvailable)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor d`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, db.Translate("count doctors", err)
	}

	query := `SELECT ` + doctorColumns + ` FROM doctor d` + w.sql() + ` ORDER BY d.last_name, d.first_name` + w.page(limit, offset)
	out, err := r.query(ctx, "list doctors", query, w.args...)
	return out, total, err
}

func (r *doctorRepoPG) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Doctor, error) {
	return r.query(ctx, "list clinic doctors", `SELECT `+doctorColumns+`
		FROM doctor d
		JOIN clinic_doctor cd ON cd.doctor_id = d.id
		WHERE cd.clinic_id = $1 AND cd.status = 'active' AND d.is_active AND d.is_available
		ORDER BY d.last_name, d.first_name`, clinicID)
}

func (r *doctorRepoPG) AttachSpeciality(ctx context.Context, l SpecialityLink) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_speciality (doctor_id, speciality_id, is_primary, certification_date, certification_body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doctor_id, speciality_id) DO UPDATE SET
			is_primary = EXCLUDED.is_primary,
			certification_date = EXCLUDED.certification_date,
			certification_body = EXCLUDED.certification_body`,
		l.DoctorID, l.SpecialityID, l.IsPrimary, l.CertificationDate, l.CertificationBody)
	return db.Translate("attach speciality", err)
}

func (r *doctorRepoPG) AttachClinic(ctx context.Context, l ClinicLink) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinic_doctor (clinic_id, doctor_id, start_date, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (clinic_id, doctor_id) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			status = EXCLUDED.status`,
		l.ClinicID, l.DoctorID, l.StartDate, l.Status)
	return db.Translate("attach clinic", err)
}

func (r *doctorRepoPG) SpecialitiesOf(ctx context.Context, doctorIDs []uuid.UUID) (map[uuid.UUID][]DoctorSpeciality, error) {
	out := make(map[uuid.UUID][]DoctorSpeciality, len(doctorIDs))
	if len(doctorIDs) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT ds.doctor_id, s.id, s.name, s.description, ds.is_primary, ds.certification_date, ds.certification_body
		FROM doctor_speciality ds
		JOIN speciality s ON s.id = ds.speciality_id
		WHERE ds.doctor_id = ANY($1)
		ORDER BY ds.is_primary DESC, s.name`, doctorIDs)
	if err != nil {
		return nil, db.Translate("doctor specialities", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doctorID uuid.UUID
		var s DoctorSpeciality
		if err := rows.Scan(&doctorID, &s.SpecialityID, &s.Name, &s.Description, &s.IsPrimary,
			&s.CertificationDate, &s.CertificationBody); err != nil {
			return nil, db.Translate("doctor specialities", err)
		}
		out[doctorID] = append(out[doctorID], s)
	}
	return out, db.Translate("doctor specialities", rows.Err())
}

func (r *doctorRepoPG) query(ctx context.Context, op, query string, args ...interface{}) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate(op, err)
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, db.Translate(op, err)
		}
		out = append(out, d)
	}
	return out, db.Translate(op, rows.Err())
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.GMCNumber,
		&d.DateOfBirth, &d.Gender, &d.Qualifications, &d.YearsOfExperience, &d.Bio,
		&d.IsActive, &d.IsAvailable, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
