package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func TestBatchesCreateDuplicateFingerprint(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBatchesRepo(db, time.Second)

	mock.ExpectExec("INSERT INTO batches").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), persistence.Batch{
		ID:          "b-1",
		Name:        "may_delivery.zip",
		Fingerprint: "fp-abc",
		Status:      domain.BatchProcessing,
		StartedAt:   time.Now(),
	})
	require.Error(t, err)
	assert.True(t, persistence.IsDuplicate(err))
	assert.Contains(t, err.Error(), "fp-abc")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchesFinishUnknownID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBatchesRepo(db, time.Second)

	mock.ExpectExec("UPDATE batches").
		WithArgs("COMPLETED", sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Finish(context.Background(), "missing", domain.BatchCompleted, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchesGetByFingerprint(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBatchesRepo(db, time.Second)

	started := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "fingerprint", "file_count", "status", "started_at", "completed_at"}).
		AddRow("b-1", "may_delivery.zip", "fp-abc", 42, "COMPLETED", started, started.Add(time.Minute))
	mock.ExpectQuery("FROM batches").
		WithArgs("fp-abc").
		WillReturnRows(rows)

	batch, err := repo.GetByFingerprint(context.Background(), "fp-abc")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, "b-1", batch.ID)
	assert.Equal(t, domain.BatchCompleted, batch.Status)
	assert.Equal(t, 42, batch.FileCount)
	require.NotNil(t, batch.CompletedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchesFileStatusCounts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBatchesRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{"parse_status", "count"}).
		AddRow("SUCCESS", int64(40)).
		AddRow("FAILED", int64(2))
	mock.ExpectQuery("FROM raw_files").
		WithArgs("b-1").
		WillReturnRows(rows)

	counts, err := repo.FileStatusCounts(context.Background(), "b-1")
	require.NoError(t, err)

	assert.Equal(t, int64(40), counts["SUCCESS"])
	assert.Equal(t, int64(2), counts["FAILED"])

	assert.NoError(t, mock.ExpectationsWereMet())
}
