package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func TestUpsertBatchRunsInOneTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewObservationsRepo(db, time.Second)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO observations")
	prep.ExpectExec().
		WithArgs("13FT0367", "SPREADSHEET", "corrected_mass_total_t", "2024-05-01", "",
			2988.1, "t", "fp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("13FT0367", "XML", "corrected_mass_total_t", "2024-05-01", "",
			2988.4, "t", "fp-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpsertBatch(context.Background(), []persistence.Observation{
		{AssetTag: "13FT0367", Source: domain.SourceSpreadsheet, Metric: "corrected_mass_total_t",
			BusinessDate: "2024-05-01", Value: 2988.1, Unit: "t", RawFileFingerprint: "fp-1"},
		{AssetTag: "13FT0367", Source: domain.SourceXML, Metric: "corrected_mass_total_t",
			BusinessDate: "2024-05-01", Value: 2988.4, Unit: "t", RawFileFingerprint: "fp-2"},
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	db, mock := newMock(t)
	repo := NewObservationsRepo(db, time.Second)

	require.NoError(t, repo.UpsertBatch(context.Background(), nil))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByAssetDateGroupsSources(t *testing.T) {
	db, mock := newMock(t)
	repo := NewObservationsRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{
		"asset_tag", "source", "metric", "business_date", "time_window",
		"value", "unit", "raw_file_fingerprint",
	}).
		AddRow("13FT0367", "SPREADSHEET", "corrected_mass_total_t", "2024-05-01", "", 2988.1, "t", "fp-1").
		AddRow("13FT0367", "XML", "corrected_mass_total_t", "2024-05-01", "", 2988.4, "t", "fp-2")
	mock.ExpectQuery("FROM observations").
		WithArgs("13FT0367", "2024-05-01").
		WillReturnRows(rows)

	observations, err := repo.ListByAssetDate(context.Background(), "13FT0367", "2024-05-01")
	require.NoError(t, err)

	require.Len(t, observations, 2)
	assert.Equal(t, domain.SourceSpreadsheet, observations[0].Source)
	assert.Equal(t, domain.SourceXML, observations[1].Source)
	assert.Equal(t, observations[0].Metric, observations[1].Metric)

	assert.NoError(t, mock.ExpectationsWereMet())
}
