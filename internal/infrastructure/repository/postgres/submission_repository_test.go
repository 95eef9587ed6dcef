package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/plagioguard/internal/core/domain"
)

var submissionColumns = []string{"id", "user_id", "title", "topics", "file", "report", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*SubmissionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewSubmissionRepository(db), mock, func() { _ = db.Close() }
}

func TestCreateInsertsQueuedSubmission(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO submissions").
		WithArgs("s-1", "u-1", "Essay", []byte(`["ai"]`), nil, "queued", []byte(`{"status":"queued"}`), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Submission{
		ID:        "s-1",
		UserID:    "u-1",
		Title:     "Essay",
		Topics:    []string{"ai"},
		Report:    domain.QueuedReport(),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, user_id, title").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesJSONColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(submissionColumns).AddRow(
		"s-1", "u-1", "Essay", []byte(`["ai","ethics"]`),
		[]byte(`{"publicId":"cmt-pdfs/sub_s-1","url":"https://cdn/x","bytes":10,"format":"pdf"}`),
		[]byte(`{"status":"done","plagiarism":{"score":42,"sources":[],"rephrasedDetected":false},"finalVerdict":"Clean"}`),
		now, now,
	)
	mock.ExpectQuery("SELECT id, user_id, title").WithArgs("s-1").WillReturnRows(rows)

	sub, err := repo.GetByID(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sub.File == nil || sub.File.URL != "https://cdn/x" {
		t.Fatalf("unexpected file %+v", sub.File)
	}
	if sub.Report.Status != domain.StatusDone || sub.Report.Plagiarism.Score != 42 {
		t.Fatalf("unexpected report %+v", sub.Report)
	}
	if len(sub.Topics) != 2 {
		t.Fatalf("unexpected topics %#v", sub.Topics)
	}
}

func TestSaveFileReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE submissions").
		WithArgs("missing", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveFile(context.Background(), "missing", domain.FilePointer{URL: "https://cdn/x"})
	if !domain.IsKind(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionReportGuardsPredecessors(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec(`UPDATE submissions\s+SET status = \$2, report = \$3, updated_at = \$4\s+WHERE id = \$1 AND status IN \(\$5, \$6\)`).
		WithArgs("s-1", "error", sqlmock.AnyArg(), sqlmock.AnyArg(), "queued", "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TransitionReport(context.Background(), "s-1", domain.ErrorReport("boom")); err != nil {
		t.Fatalf("TransitionReport() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionReportFromTerminalIsInvalid(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE submissions").
		WithArgs("s-1", "done", sqlmock.AnyArg(), sqlmock.AnyArg(), "processing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM submissions").
		WithArgs("s-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("error"))

	err := repo.TransitionReport(context.Background(), "s-1", domain.Report{Status: domain.StatusDone})
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionReportMissingRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE submissions").
		WithArgs("missing", "processing", sqlmock.AnyArg(), sqlmock.AnyArg(), "queued").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM submissions").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.TransitionReport(context.Background(), "missing", domain.ProcessingReport())
	if !domain.IsKind(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestTransitionIntoQueuedIsRejectedWithoutQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	err := repo.TransitionReport(context.Background(), "s-1", domain.QueuedReport())
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListFiltersByUserNewestFirst(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(submissionColumns).
		AddRow("s-2", "u-1", "B", []byte(`[]`), nil, []byte(`{"status":"queued"}`), now, now).
		AddRow("s-1", "u-1", "A", []byte(`[]`), nil, []byte(`{"status":"error","error":"x"}`), now.Add(-time.Minute), now)
	mock.ExpectQuery(`ORDER BY created_at DESC\s+LIMIT \$2`).
		WithArgs("u-1", 200).
		WillReturnRows(rows)

	subs, err := repo.List(context.Background(), domain.ListFilter{UserID: "u-1", Limit: 200})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(subs) != 2 || subs[0].ID != "s-2" || subs[1].Report.Error != "x" {
		t.Fatalf("unexpected submissions %+v", subs)
	}
	if subs[0].File != nil {
		t.Fatalf("expected nil file for queued row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatsScansAggregates(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM submissions").
		WithArgs("", domain.FlaggedAIProbability, domain.FlaggedPlagiarismScore).
		WillReturnRows(sqlmock.NewRows([]string{"total", "queued", "processing", "done", "error", "flagged", "avg_plag", "avg_ai"}).
			AddRow(int64(5), int64(1), int64(0), int64(3), int64(1), int64(2), 41.5, 0.62))

	stats, err := repo.Stats(context.Background(), "")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 5 || stats.Done != 3 || stats.Flagged != 2 || stats.AvgPlagiarismScore != 41.5 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
