package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

func TestAssetsEnsureKeepsStoredDimensions(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssetsRepo(db, time.Second)

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bank := "B02"

	mock.ExpectExec("INSERT INTO assets").
		WithArgs("13FT0367", "MPFM", "B02", nil, nil, created).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// The stored row carries dimensions from an earlier writer.
	rows := sqlmock.NewRows([]string{"tag", "kind", "bank", "stream", "riser", "created_at"}).
		AddRow("13FT0367", "MPFM", "B01", "2", nil, created)
	mock.ExpectQuery("SELECT tag, kind, bank, stream, riser, created_at").
		WithArgs("13FT0367").
		WillReturnRows(rows)

	stored, err := repo.Ensure(context.Background(), persistence.Asset{
		Tag:       "13FT0367",
		Kind:      "MPFM",
		Bank:      &bank,
		CreatedAt: created,
	})
	require.NoError(t, err)

	require.NotNil(t, stored.Bank)
	assert.Equal(t, "B01", *stored.Bank)
	require.NotNil(t, stored.Stream)
	assert.Equal(t, "2", *stored.Stream)
	assert.Nil(t, stored.Riser)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetsGetUnknownReturnsNil(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssetsRepo(db, time.Second)

	mock.ExpectQuery("SELECT tag, kind, bank, stream, riser, created_at").
		WithArgs("99XX0000").
		WillReturnRows(sqlmock.NewRows([]string{"tag", "kind", "bank", "stream", "riser", "created_at"}))

	asset, err := repo.Get(context.Background(), "99XX0000")
	require.NoError(t, err)
	assert.Nil(t, asset)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssetsListOrdersByTag(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssetsRepo(db, time.Second)

	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"tag", "kind", "bank", "stream", "riser", "created_at"}).
		AddRow("13FT0367", "MPFM", "B01", nil, nil, created).
		AddRow("13FT0368A", "MPFM", nil, nil, "A1", created)
	mock.ExpectQuery("FROM assets").WillReturnRows(rows)

	assets, err := repo.List(context.Background())
	require.NoError(t, err)

	require.Len(t, assets, 2)
	assert.Equal(t, "13FT0367", assets[0].Tag)
	assert.Equal(t, "13FT0368A", assets[1].Tag)
	require.NotNil(t, assets[1].Riser)
	assert.Equal(t, "A1", *assets[1].Riser)

	assert.NoError(t, mock.ExpectationsWereMet())
}
