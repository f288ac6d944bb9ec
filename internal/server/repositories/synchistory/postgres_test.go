package synchistory

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/listkeeper/internal/common"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`INSERT INTO sync_history \(id, connection_id, list_id, status, started_at\)\s+VALUES .* RETURNING id`)

	started := time.Now()
	mock.ExpectQuery(q.String()).
		WithArgs("h1", "c1", nil, models.SyncOutcomeStarted, started).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("h1"))

	h, err := repo.Create(context.Background(), &models.SyncHistory{
		ID:           "h1",
		ConnectionID: "c1",
		Status:       models.SyncOutcomeStarted,
		StartedAt:    started,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ID != "h1" {
		t.Fatalf("unexpected id: %s", h.ID)
	}
}

func TestFindOpenByConnection_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM sync_history\s+WHERE connection_id = \$1 AND completed_at IS NULL\s+ORDER BY started_at DESC\s+LIMIT 1`)

	started := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "connection_id", "list_id", "status", "started_at", "completed_at", "error_message", "subscriber_count",
	}).AddRow("h1", "c1", nil, "started", started, nil, nil, nil)

	mock.ExpectQuery(q.String()).WithArgs("c1").WillReturnRows(rows)

	h, err := repo.FindOpenByConnection(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ID != "h1" || h.Status != models.SyncOutcomeStarted || h.CompletedAt != nil {
		t.Fatalf("unexpected row: %+v", h)
	}
}

func TestFindOpenByConnection_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM sync_history\s+WHERE connection_id = \$1 AND completed_at IS NULL`)
	mock.ExpectQuery(q.String()).WithArgs("c1").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindOpenByConnection(context.Background(), "c1")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestFinalizeSuccess_WritesOnce(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE sync_history\s+SET status = \$1, completed_at = now\(\), error_message = \$2, subscriber_count = \$3\s+WHERE id = \$4 AND completed_at IS NULL`)

	count := 120
	mock.ExpectExec(q.String()).
		WithArgs(models.SyncOutcomeSuccess, nil, &count, "h1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.FinalizeSuccess(context.Background(), "h1", 120); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFinalize_SecondWriteIsAlreadyFinal(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`UPDATE sync_history\s+SET status = \$1, completed_at = now\(\), error_message = \$2, subscriber_count = \$3\s+WHERE id = \$4 AND completed_at IS NULL`)

	msg := "provider unreachable"
	mock.ExpectExec(q.String()).
		WithArgs(models.SyncOutcomeFailed, &msg, nil, "h1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.FinalizeFailure(context.Background(), "h1", "provider unreachable")
	if !errors.Is(err, common.ErrAlreadyFinal) {
		t.Fatalf("want ErrAlreadyFinal, got %v", err)
	}
}

func TestListRecent_OrderedNewestFirst(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := regexp.MustCompile(`SELECT .* FROM sync_history\s+WHERE connection_id = \$1\s+ORDER BY started_at DESC\s+LIMIT \$2`)

	newer := time.Now()
	older := newer.Add(-time.Hour)
	doneAt := newer.Add(-30 * time.Minute)
	count := 10
	msg := "rate limited"

	rows := sqlmock.NewRows([]string{
		"id", "connection_id", "list_id", "status", "started_at", "completed_at", "error_message", "subscriber_count",
	}).
		AddRow("h2", "c1", nil, "success", newer, doneAt, nil, &count).
		AddRow("h1", "c1", nil, "failed", older, doneAt, &msg, nil)

	mock.ExpectQuery(q.String()).WithArgs("c1", 20).WillReturnRows(rows)

	got, err := repo.ListRecent(context.Background(), "c1", 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].Status != models.SyncOutcomeSuccess || *got[0].SubscriberCount != 10 {
		t.Fatalf("unexpected first row: %+v", got[0])
	}
	if got[1].Status != models.SyncOutcomeFailed || *got[1].ErrorMessage != "rate limited" {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
}
