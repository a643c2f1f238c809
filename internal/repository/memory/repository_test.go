package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/repository"
)

func TestCreateAndFind(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

	rec := models.NewStockRecord("Rice", models.UnitKg, now)
	require.NoError(t, repo.Create(ctx, rec))

	dup := models.NewStockRecord(" rice ", "KG", now)
	assert.ErrorIs(t, repo.Create(ctx, dup), repository.ErrDuplicate)

	byID, err := repo.FindByID(ctx, rec.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Rice", byID.Product)

	byName, err := repo.FindByProduct(ctx, "RICE", "kg")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byName.ID)

	_, err = repo.FindByProduct(ctx, "rice", models.UnitBox)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	rec := models.NewStockRecord("Rice", models.UnitKg, time.Now())
	require.NoError(t, repo.Create(ctx, rec))

	got, err := repo.FindByID(ctx, rec.ID.Hex())
	require.NoError(t, err)
	got.OpeningStock = models.Qty(999)

	again, err := repo.FindByID(ctx, rec.ID.Hex())
	require.NoError(t, err)
	assert.True(t, again.OpeningStock.IsZero())
}

func TestApplyComparesVersion(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	rec := models.NewStockRecord("Rice", models.UnitKg, now)
	require.NoError(t, repo.Create(ctx, rec))

	m := repository.Mutation{
		Counters: repository.Counters{TotalPurchases: models.Qty(10)},
		Movement: &models.Movement{Type: models.MovementPurchase, Quantity: models.Qty(10), CreatedAt: now},
		At:       now,
	}
	m.Preview(rec)

	updated, err := repo.Apply(ctx, rec.ID.Hex(), 0, m)
	require.NoError(t, err)
	assert.EqualValues(t, 1, updated.Version)
	assert.True(t, models.Qty(10).Equal(updated.ClosingStock))
	assert.Len(t, updated.Movements, 1)

	_, err = repo.Apply(ctx, rec.ID.Hex(), 0, m)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	_, err = repo.Apply(ctx, rec.ID.Hex(), 1, repository.Mutation{
		Agent: &repository.AgentChange{AgentID: "ghost", Delivered: models.Qty(1)},
		At:    now,
	})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestListFiltersAndStripsMovements(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	now := time.Now()

	for _, p := range []string{"Sugar", "rice", "Palm oil"} {
		rec := models.NewStockRecord(p, models.UnitKg, now)
		rec.Movements = append(rec.Movements, models.Movement{Type: models.MovementPurchase, Quantity: models.Qty(1)})
		require.NoError(t, repo.Create(ctx, rec))
	}

	all, err := repo.List(ctx, models.StockFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"palm oil", "rice", "sugar"}, []string{all[0].ProductKey, all[1].ProductKey, all[2].ProductKey})
	for _, r := range all {
		assert.Empty(t, r.Movements)
	}

	oil, err := repo.List(ctx, models.StockFilter{Product: "OIL"})
	require.NoError(t, err)
	assert.Len(t, oil, 1)
}
