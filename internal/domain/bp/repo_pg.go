package bp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhomebp/myhomebp/internal/platform/db"
)

type readingRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &readingRepoPG{pool: pool}
}

func (r *readingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const readingColumns = `id, patient_id, reading_date, session_type,
	reading_1_systolic, reading_1_diastolic, reading_1_pulse,
	reading_2_systolic, reading_2_diastolic, reading_2_pulse,
	reading_3_systolic, reading_3_diastolic, reading_3_pulse,
	average_systolic, average_diastolic, average_pulse,
	reading_category, is_high_reading, requires_urgent_advice, system_response,
	created_at, updated_at`

func (r *readingRepoPG) Create(ctx context.Context, rd *Reading) error {
	rd.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO blood_pressure_reading (
			id, patient_id, reading_date, session_type,
			reading_1_systolic, reading_1_diastolic, reading_1_pulse,
			reading_2_systolic, reading_2_diastolic, reading_2_pulse,
			reading_3_systolic, reading_3_diastolic, reading_3_pulse,
			average_systolic, average_diastolic, average_pulse,
			reading_category, is_high_reading, requires_urgent_advice, system_response
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16,
			$17, $18, $19, $20
		) RETURNING created_at, updated_at`,
		rd.ID, rd.PatientID, rd.ReadingDate, rd.SessionType,
		rd.Reading1Systolic, rd.Reading1Diastolic, rd.Reading1Pulse,
		rd.Reading2Systolic, rd.Reading2Diastolic, rd.Reading2Pulse,
		rd.Reading3Systolic, rd.Reading3Diastolic, rd.Reading3Pulse,
		rd.AverageSystolic, rd.AverageDiastolic, rd.AveragePulse,
		rd.ReadingCategory, rd.IsHighReading, rd.RequiresUrgentAdvice, rd.SystemResponse,
	).Scan(&rd.CreatedAt, &rd.UpdatedAt)
	return db.Translate("create reading", err)
}

func (r *readingRepoPG) AddThirdReading(ctx context.Context, rd *Reading) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE blood_pressure_reading SET
			reading_3_systolic = $3, reading_3_diastolic = $4, reading_3_pulse = $5,
			average_systolic = $6, average_diastolic = $7, average_pulse = $8,
			reading_category = $9, is_high_reading = $10, requires_urgent_advice = $11,
			system_response = $12, updated_at = NOW()
		WHERE id = $1 AND patient_id = $2 AND reading_3_systolic IS NULL
		RETURNING updated_at`,
		rd.ID, rd.PatientID,
		rd.Reading3Systolic, rd.Reading3Diastolic, rd.Reading3Pulse,
		rd.AverageSystolic, rd.AverageDiastolic, rd.AveragePulse,
		rd.ReadingCategory, rd.IsHighReading, rd.RequiresUrgentAdvice, rd.SystemResponse,
	).Scan(&rd.UpdatedAt)
	return db.Translate("add third reading", err)
}

func (r *readingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reading, error) {
	rd, err := scanReading(r.conn(ctx).QueryRow(ctx,
		`SELECT `+readingColumns+` FROM blood_pressure_reading WHERE id = $1`, id))
	return rd, db.Translate("get reading", err)
}

func (r *readingRepoPG) Latest(ctx context.Context, patientID uuid.UUID) (*Reading, error) {
	rd, err := scanReading(r.conn(ctx).QueryRow(ctx,
		`SELECT `+readingColumns+` FROM blood_pressure_reading
		WHERE patient_id = $1 ORDER BY reading_date DESC, created_at DESC LIMIT 1`, patientID))
	return rd, db.Translate("latest reading", err)
}

func (r *readingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time, session *Session) ([]Reading, error) {
	query := `SELECT ` + readingColumns + ` FROM blood_pressure_reading
		WHERE patient_id = $1 AND reading_date >= $2 AND reading_date <= $3`
	args := []interface{}{patientID, from, to}
	if session != nil {
		query += fmt.Sprintf(` AND session_type = $%d`, len(args)+1)
		args = append(args, *session)
	}
	query += ` ORDER BY reading_date ASC, created_at ASC`

	return r.list(ctx, "list readings", query, args...)
}

func (r *readingRepoPG) Recent(ctx context.Context, patientID uuid.UUID, limit int) ([]Reading, error) {
	return r.list(ctx, "recent readings", `SELECT `+readingColumns+` FROM blood_pressure_reading
		WHERE patient_id = $1 ORDER BY reading_date DESC, created_at DESC LIMIT $2`, patientID, limit)
}

func (r *readingRepoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM blood_pressure_reading WHERE patient_id = $1`, patientID).Scan(&n)
	return n, db.Translate("count readings", err)
}

func (r *readingRepoPG) list(ctx context.Context, op, query string, args ...interface{}) ([]Reading, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, db.Translate(op, err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, db.Translate(op, err)
		}
		out = append(out, *rd)
	}
	return out, db.Translate(op, rows.Err())
}

func scanReading(row pgx.Row) (*Reading, error) {
	var rd Reading
	err := row.Scan(
		&rd.ID, &rd.PatientID, &rd.ReadingDate, &rd.SessionType,
		&rd.Reading1Systolic, &rd.Reading1Diastolic, &rd.Reading1Pulse,
		&rd.Reading2Systolic, &rd.Reading2Diastolic, &rd.Reading2Pulse,
		&rd.Reading3Systolic, &rd.Reading3Diastolic, &rd.Reading3Pulse,
		&rd.AverageSystolic, &rd.AverageDiastolic, &rd.AveragePulse,
		&rd.ReadingCategory, &rd.IsHighReading, &rd.RequiresUrgentAdvice, &rd.SystemResponse,
		&rd.CreatedAt, &rd.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rd, nil
}
