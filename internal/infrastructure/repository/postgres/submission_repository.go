package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

// SubmissionRepository is the journal of submission round trips.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SubmissionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101401)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS facturasend_submissions (
	id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	document_type TEXT NOT NULL,
	documents JSONB NOT NULL DEFAULT '[]'::jsonb,
	success BOOLEAN NOT NULL,
	error_message TEXT,
	item_errors JSONB NOT NULL DEFAULT '[]'::jsonb,
	batch_id TEXT,
	tracking_codes JSONB NOT NULL DEFAULT '[]'::jsonb,
	follow_up TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facturasend_submissions_created_at ON facturasend_submissions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_facturasend_submissions_batch_id ON facturasend_submissions(batch_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Record(ctx context.Context, rec domain.SubmissionRecord) error {
	documentsJSON, err := marshalList(rec.Documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	itemErrorsJSON, err := marshalList(rec.ItemErrors)
	if err != nil {
		return fmt.Errorf("marshal item errors: %w", err)
	}
	codesJSON, err := marshalList(rec.TrackingCodes)
	if err != nil {
		return fmt.Errorf("marshal tracking codes: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO facturasend_submissions (
	id, action, document_type, documents, success, error_message, item_errors, batch_id, tracking_codes, follow_up, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
	success = EXCLUDED.success,
	error_message = EXCLUDED.error_message,
	item_errors = EXCLUDED.item_errors,
	batch_id = EXCLUDED.batch_id,
	tracking_codes = EXCLUDED.tracking_codes,
	follow_up = EXCLUDED.follow_up,
	duration_ms = EXCLUDED.duration_ms
`,
		rec.ID, string(rec.Action), string(rec.DocumentType), documentsJSON, rec.Success, rec.Error,
		itemErrorsJSON, rec.BatchID, codesJSON, string(rec.FollowUp), rec.DurationMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) ListRecent(ctx context.Context, limit int) ([]domain.SubmissionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, action, document_type, documents, success, error_message, item_errors, batch_id, tracking_codes, follow_up, duration_ms, created_at
FROM facturasend_submissions
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SubmissionRecord, 0)
	for rows.Next() {
		rec, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

type submissionScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row submissionScanner) (domain.SubmissionRecord, error) {
	var rec domain.SubmissionRecord
	var action, documentType string
	var errMessage, batchID, followUp sql.NullString
	var documentsRaw, itemErrorsRaw, codesRaw []byte

	err := row.Scan(
		&rec.ID, &action, &documentType, &documentsRaw, &rec.Success, &errMessage,
		&itemErrorsRaw, &batchID, &codesRaw, &followUp, &rec.DurationMS, &rec.CreatedAt,
	)
	if err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("scan submission: %w", err)
	}

	if err := unmarshalList(documentsRaw, &rec.Documents); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("unmarshal documents: %w", err)
	}
	if err := unmarshalList(itemErrorsRaw, &rec.ItemErrors); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("unmarshal item errors: %w", err)
	}
	if err := unmarshalList(codesRaw, &rec.TrackingCodes); err != nil {
		return domain.SubmissionRecord{}, fmt.Errorf("unmarshal tracking codes: %w", err)
	}
	rec.Action = domain.Action(action)
	rec.DocumentType = domain.DocumentType(documentType)
	rec.Error = errMessage.String
	rec.BatchID = batchID.String
	rec.FollowUp = domain.KudeStrategy(followUp.String)
	return rec, nil
}

// marshalList stores nil slices as [] so the NOT NULL columns stay valid.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalList[S ~[]T, T any](raw []byte, out *S) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
