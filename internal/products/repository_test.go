package product

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

func TestDecrementStockNeverGoesNegative(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	owner := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	store := dbtest.MustStore(t, conn, owner.ID)
	variation := dbtest.MustVariation(t, conn, store.ID, nil, 500, dbtest.WithStock(10))

	repo := NewRepository(conn)

	ok, err := repo.DecrementStock(ctx, variation.ID, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementStock(ctx, variation.ID, 6)
	require.NoError(t, err)
	assert.False(t, ok, "second decrement must be rejected")

	var reloaded models.Variation
	require.NoError(t, conn.First(&reloaded, "id = ?", variation.ID).Error)
	assert.Equal(t, 5, reloaded.StockQty)
}

func TestDecrementStockIgnoresUnmanagedVariations(t *testing.T) {
	conn := dbtest.Open(t)
	owner := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	store := dbtest.MustStore(t, conn, owner.ID)
	variation := dbtest.MustVariation(t, conn, store.ID, nil, 500)

	ok, err := NewRepository(conn).DecrementStock(context.Background(), variation.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIncrementFlashSaleSoldRespectsAllocation(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	owner := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	store := dbtest.MustStore(t, conn, owner.ID)
	variation := dbtest.MustVariation(t, conn, store.ID, nil, 500)
	sale := dbtest.MustFlashSale(t, conn, variation.ID, 300, 3)

	repo := NewRepository(conn)

	ok, err := repo.IncrementFlashSaleSold(ctx, sale.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementFlashSaleSold(ctx, sale.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.IncrementFlashSaleSold(ctx, sale.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFindActiveFlashSalesSkipsSoldOutAndExpired(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	owner := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	store := dbtest.MustStore(t, conn, owner.ID)
	active := dbtest.MustVariation(t, conn, store.ID, nil, 500)
	soldOut := dbtest.MustVariation(t, conn, store.ID, nil, 500)
	expired := dbtest.MustVariation(t, conn, store.ID, nil, 500)

	sale := dbtest.MustFlashSale(t, conn, active.ID, 300, 5)
	full := dbtest.MustFlashSale(t, conn, soldOut.ID, 300, 1)
	require.NoError(t, conn.Model(&models.FlashSale{}).Where("id = ?", full.ID).Update("sold", 1).Error)
	old := dbtest.MustFlashSale(t, conn, expired.ID, 300, 5)
	require.NoError(t, conn.Model(&models.FlashSale{}).Where("id = ?", old.ID).
		Update("ends_at", time.Now().UTC().Add(-time.Minute)).Error)

	sales, err := NewRepository(conn).FindActiveFlashSales(ctx, []uuid.UUID{active.ID, soldOut.ID, expired.ID}, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, sale.ID, sales[active.ID].ID)
}

func TestCategoryLineageWalksParents(t *testing.T) {
	conn := dbtest.Open(t)
	root := dbtest.MustCategory(t, conn, nil)
	mid := dbtest.MustCategory(t, conn, &root.ID)
	leaf := dbtest.MustCategory(t, conn, &mid.ID)

	lineage, err := NewRepository(conn).CategoryLineage(context.Background(), leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{leaf.ID, mid.ID, root.ID}, lineage)
}

func TestFindVariationsPreloadsProduct(t *testing.T) {
	conn := dbtest.Open(t)
	owner := dbtest.MustUser(t, conn, enums.UserRoleVendor)
	store := dbtest.MustStore(t, conn, owner.ID)
	variation := dbtest.MustVariation(t, conn, store.ID, nil, 750)

	found, err := NewRepository(conn).FindVariations(context.Background(), []uuid.UUID{variation.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	got := found[variation.ID]
	require.NotNil(t, got.Product)
	assert.Equal(t, variation.ProductID, got.Product.ID)
	assert.True(t, got.Price.Equal(variation.Price))
}
