package report

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhomebp/myhomebp/internal/platform/db"
)

type reportRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &reportRepoPG{pool: pool}
}

func (r *reportRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const reportColumns = `id, patient_id, start_date, end_date, generated_at, total_readings,
	average_systolic, average_diastolic, compliance_status, filename, email_sent`

func (r *reportRepoPG) Create(ctx context.Context, rp *Report) error {
	rp.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bp_report (
			id, patient_id, start_date, end_date, total_readings, average_systolic,
			average_diastolic, compliance_status, filename, content, email_sent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING generated_at`,
		rp.ID, rp.PatientID, rp.StartDate, rp.EndDate, rp.TotalReadings, rp.AverageSystolic,
		rp.AverageDiastolic, rp.ComplianceStatus, rp.Filename, rp.Content, rp.EmailSent,
	).Scan(&rp.GeneratedAt)
	return db.Translate("create report", err)
}

func (r *reportRepoPG) GetByID(ctx context.Context, patientID, id uuid.UUID) (*Report, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+reportColumns+`, content FROM bp_report WHERE id = $1 AND patient_id = $2`, id, patientID)
	var rp Report
	err := row.Scan(
		&rp.ID, &rp.PatientID, &rp.StartDate, &rp.EndDate, &rp.GeneratedAt, &rp.TotalReadings,
		&rp.AverageSystolic, &rp.AverageDiastolic, &rp.ComplianceStatus, &rp.Filename, &rp.EmailSent,
		&rp.Content,
	)
	if err != nil {
		return nil, db.Translate("get report", err)
	}
	return &rp, nil
}

func (r *reportRepoPG) GetFile(ctx context.Context, id uuid.UUID) (*Report, error) {
	var rp Report
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, filename, content FROM bp_report WHERE id = $1`, id,
	).Scan(&rp.ID, &rp.Filename, &rp.Content)
	if err != nil {
		return nil, db.Translate("get report file", err)
	}
	return &rp, nil
}

func (r *reportRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM bp_report WHERE patient_id = $1`, patientID,
	).Scan(&total); err != nil {
		return nil, 0, db.Translate("count reports", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reportColumns+` FROM bp_report
		WHERE patient_id = $1 ORDER BY generated_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, db.Translate("list reports", err)
	}
	defer rows.Close()

	var items []*Report
	for rows.Next() {
		rp, err := scanReport(rows)
		if err != nil {
			return nil, 0, db.Translate("scan report", err)
		}
		items = append(items, rp)
	}
	return items, total, db.Translate("list reports", rows.Err())
}

func (r *reportRepoPG) MarkEmailed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE bp_report SET email_sent = TRUE WHERE id = $1`, id)
	if err != nil {
		return db.Translate("mark report emailed", err)
	}
	return db.RequireAffected("mark report emailed", tag)
}

func scanReport(row pgx.Row) (*Report, error) {
	var rp Report
	err := row.Scan(
		&rp.ID, &rp.PatientID, &rp.StartDate, &rp.EndDate, &rp.GeneratedAt, &rp.TotalReadings,
		&rp.AverageSystolic, &rp.AverageDiastolic, &rp.ComplianceStatus, &rp.Filename, &rp.EmailSent,
	)
	if err != nil {
		return nil, err
	}
	return &rp, nil
}
