package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/parse"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func TestReplaceForFileRewritesLines(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGasBalanceRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM gas_balance_lines").
		WithArgs("fp-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	prep := mock.ExpectPrepare("INSERT INTO gas_balance_lines")
	prep.ExpectExec().
		WithArgs("fp-1", 0, "2024-05-01", "+", "Import riser A", 1250.5, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("fp-1", 1, "2024-05-01", "-", "Flare", 12.3, 0.4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ReplaceForFile(context.Background(), "fp-1", []persistence.GasBalanceLine{
		{LineOrder: 0, BusinessDate: "2024-05-01", Sign: "+", Description: "Import riser A", Flowrate: parse.Ptr(1250.5)},
		{LineOrder: 1, BusinessDate: "2024-05-01", Sign: "-", Description: "Flare", Flowrate: parse.Ptr(12.3), PD: parse.Ptr(0.4)},
	})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForFileEmptyClearsOnly(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGasBalanceRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM gas_balance_lines").
		WithArgs("fp-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceForFile(context.Background(), "fp-1", nil))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByDateOrdersByFileAndLine(t *testing.T) {
	db, mock := newMock(t)
	repo := NewGasBalanceRepo(db, time.Second)

	rows := sqlmock.NewRows([]string{
		"raw_file_fingerprint", "line_order", "business_date", "sign", "description", "flowrate", "pd",
	}).
		AddRow("fp-1", 0, "2024-05-01", "+", "Import riser A", 1250.5, nil).
		AddRow("fp-1", 1, "2024-05-01", "-", "Flare", 12.3, 0.4)
	mock.ExpectQuery("FROM gas_balance_lines").
		WithArgs("2024-05-01").
		WillReturnRows(rows)

	lines, err := repo.ListByDate(context.Background(), "2024-05-01")
	require.NoError(t, err)

	require.Len(t, lines, 2)
	assert.Equal(t, "+", lines[0].Sign)
	assert.Nil(t, lines[0].PD)
	require.NotNil(t, lines[1].PD)
	assert.InDelta(t, 0.4, *lines[1].PD, 1e-9)

	assert.NoError(t, mock.ExpectationsWereMet())
}
