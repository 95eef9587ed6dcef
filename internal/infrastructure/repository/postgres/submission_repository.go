package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

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

	// Serialize bootstrap DDL across replicas starting together.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	topics JSONB NOT NULL DEFAULT '[]'::jsonb,
	file JSONB,
	status TEXT NOT NULL,
	report JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_user_created ON submissions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	topicsJSON, err := json.Marshal(nonNilTopics(sub.Topics))
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	reportJSON, err := json.Marshal(sub.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	var fileJSON any
	if sub.File != nil {
		raw, err := json.Marshal(sub.File)
		if err != nil {
			return fmt.Errorf("marshal file: %w", err)
		}
		fileJSON = raw
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO submissions (
	id, user_id, title, topics, file, status, report, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		sub.ID, sub.UserID, sub.Title, topicsJSON, fileJSON, string(sub.Report.Status), reportJSON,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const selectSubmission = `
SELECT id, user_id, title, topics, file, report, created_at, updated_at
FROM submissions
`

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, selectSubmission+`WHERE id = $1`, id)

	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSubmissionNotFound, "get submission", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return sub, nil
}

func (r *SubmissionRepository) SaveFile(ctx context.Context, id string, file domain.FilePointer) error {
	fileJSON, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal file: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET file = $2, updated_at = $3
WHERE id = $1
`, id, fileJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save submission file: %w", err)
	}
	return ensureAffected(res, "save submission file", id)
}

func (r *SubmissionRepository) TransitionReport(ctx context.Context, id string, report domain.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	from := report.Status.Predecessors()
	if len(from) == 0 {
		return domain.WrapError(domain.ErrInvalidTransition, "transition report", fmt.Errorf("no transition into %s", report.Status))
	}
	args := []any{id, string(report.Status), reportJSON, time.Now().UTC()}
	placeholders := make([]string, 0, len(from))
	for _, s := range from {
		args = append(args, string(s))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET status = $2, report = $3, updated_at = $4
WHERE id = $1 AND status IN (`+strings.Join(placeholders, ", ")+`)
`, args...)
	if err != nil {
		return fmt.Errorf("transition submission report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM submissions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrSubmissionNotFound, "transition report", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("read submission status: %w", err)
	}
	return domain.WrapError(domain.ErrInvalidTransition, "transition report", fmt.Errorf("%s -> %s", current, report.Status))
}

func (r *SubmissionRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Submission, error) {
	rows, err := r.db.QueryContext(ctx, selectSubmission+`
WHERE ($1 = '' OR user_id = $1)
ORDER BY created_at DESC
LIMIT $2
`, filter.UserID, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) Stats(ctx context.Context, userID string) (domain.SubmissionStats, error) {
	stats := domain.SubmissionStats{UserID: userID}
	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE status = 'queued'),
	COUNT(*) FILTER (WHERE status = 'processing'),
	COUNT(*) FILTER (WHERE status = 'done'),
	COUNT(*) FILTER (WHERE status = 'error'),
	COUNT(*) FILTER (WHERE status = 'done' AND (
		COALESCE((report->'aiGenerated'->>'probability')::float8, 0) >= $2
		OR COALESCE((report->'plagiarism'->>'score')::float8, 0) >= $3
	)),
	COALESCE(AVG((report->'plagiarism'->>'score')::float8) FILTER (WHERE status = 'done'), 0),
	COALESCE(AVG((report->'aiGenerated'->>'probability')::float8) FILTER (WHERE status = 'done'), 0)
FROM submissions
WHERE ($1 = '' OR user_id = $1)
`, userID, domain.FlaggedAIProbability, domain.FlaggedPlagiarismScore).Scan(
		&stats.Total, &stats.Queued, &stats.Processing, &stats.Done, &stats.Error,
		&stats.Flagged, &stats.AvgPlagiarismScore, &stats.AvgAIProbability,
	)
	if err != nil {
		return domain.SubmissionStats{}, fmt.Errorf("submission stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*domain.Submission, error) {
	var sub domain.Submission
	var topicsRaw, fileRaw, reportRaw []byte

	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.Title, &topicsRaw, &fileRaw, &reportRaw, &sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(topicsRaw, &sub.Topics); err != nil {
		return nil, fmt.Errorf("unmarshal topics: %w", err)
	}
	sub.Topics = nonNilTopics(sub.Topics)
	if len(fileRaw) > 0 {
		var file domain.FilePointer
		if err := json.Unmarshal(fileRaw, &file); err != nil {
			return nil, fmt.Errorf("unmarshal file: %w", err)
		}
		sub.File = &file
	}
	if err := json.Unmarshal(reportRaw, &sub.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &sub, nil
}

func ensureAffected(res sql.Result, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSubmissionNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

func nonNilTopics(topics []string) []string {
	if topics == nil {
		return []string{}
	}
	return topics
}
