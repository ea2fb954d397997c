package sqlstore

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// NewRepository wires every repository over one shared connection pool.
func NewRepository(db *sqlx.DB, timeout time.Duration) *persistence.Repository {
	return &persistence.Repository{
		Assets:       NewAssetsRepo(db, timeout),
		Batches:      NewBatchesRepo(db, timeout),
		RawFiles:     NewRawFilesRepo(db, timeout),
		Manifests:    NewManifestsRepo(db, timeout),
		Facts:        NewFactsRepo(db, timeout),
		Observations: NewObservationsRepo(db, timeout),
		GasBalance:   NewGasBalanceRepo(db, timeout),
		Regulatory:   NewRegulatoryRepo(db, timeout),
		Verdicts:     NewVerdictsRepo(db, timeout),
		CrossVal:     NewCrossValRepo(db, timeout),
	}
}
