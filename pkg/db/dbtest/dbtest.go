// Package dbtest opens migrated in-memory sqlite databases and seeds rows for
// repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Open returns a fresh, migrated sqlite database private to the test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection keeps the shared in-memory database alive and
	// serializes writers the way sqlite expects.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in a db.Client so services get a real WithTx.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromConn(conn), conn
}

func must(t *testing.T, conn *gorm.DB, row any) {
	t.Helper()
	if err := conn.Create(row).Error; err != nil {
		t.Fatalf("seed %T: %v", row, err)
	}
}

func MustUser(t *testing.T, conn *gorm.DB, role enums.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("mp_test_%s@example.com", uuid.NewString()),
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
	}
	must(t, conn, user)
	return user
}

func MustAddress(t *testing.T, conn *gorm.DB, userID uuid.UUID) *models.Address {
	t.Helper()
	addr := &models.Address{
		ID:       uuid.New(),
		UserID:   userID,
		FullName: "Ada Obi",
		Phone:    "+2348000000000",
		Line1:    "12 Marina Road",
		City:     "Lagos",
		State:    "Lagos",
		Country:  "NG",
	}
	must(t, conn, addr)
	return addr
}

// StoreOption tweaks a seeded store.
type StoreOption func(*models.Store)

func WithCommission(pct int64) StoreOption {
	return func(s *models.Store) { s.CommissionPct = decimal.NewFromInt(pct) }
}

func WithAutoComplete() StoreOption {
	return func(s *models.Store) { s.AutoCompleteOrder = true }
}

func MustStore(t *testing.T, conn *gorm.DB, ownerID uuid.UUID, opts ...StoreOption) *models.Store {
	t.Helper()
	store := &models.Store{
		ID:            uuid.New(),
		Name:          "Test Store",
		OwnerID:       ownerID,
		CommissionPct: decimal.NewFromInt(100),
	}
	for _, opt := range opts {
		opt(store)
	}
	must(t, conn, store)
	must(t, conn, &models.StoreMember{StoreID: store.ID, UserID: ownerID})
	return store
}

func MustCategory(t *testing.T, conn *gorm.DB, parentID *uuid.UUID) *models.Category {
	t.Helper()
	cat := &models.Category{ID: uuid.New(), Name: "Category", ParentID: parentID}
	must(t, conn, cat)
	return cat
}

// VariationOption tweaks a seeded variation.
type VariationOption func(*models.Variation)

func WithStock(qty int) VariationOption {
	return func(v *models.Variation) {
		v.ManageStock = true
		v.StockQty = qty
	}
}

func WithStockStatus(status enums.StockStatus) VariationOption {
	return func(v *models.Variation) {
		v.ManageStock = false
		v.StockStatus = status
	}
}

func WithDiscountPrice(price int64) VariationOption {
	return func(v *models.Variation) {
		d := decimal.NewFromInt(price)
		v.DiscountPrice = &d
	}
}

func WithMaxPurchase(qty int) VariationOption {
	return func(v *models.Variation) { v.MaxPurchaseQty = &qty }
}

// MustVariation seeds a product and one variation priced at price.
func MustVariation(t *testing.T, conn *gorm.DB, storeID uuid.UUID, categoryID *uuid.UUID, price int64, opts ...VariationOption) *models.Variation {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		StoreID:    storeID,
		CategoryID: categoryID,
		Name:       "Product " + uuid.NewString()[:6],
	}
	must(t, conn, product)
	variation := &models.Variation{
		ID:          uuid.New(),
		ProductID:   product.ID,
		StoreID:     storeID,
		Name:        product.Name + " / default",
		Price:       decimal.NewFromInt(price),
		StockStatus: enums.StockStatusInStock,
	}
	for _, opt := range opts {
		opt(variation)
	}
	must(t, conn, variation)
	return variation
}

// MustFlashSale seeds a flash sale active for the next hour.
func MustFlashSale(t *testing.T, conn *gorm.DB, variationID uuid.UUID, price int64, qty int) *models.FlashSale {
	t.Helper()
	now := time.Now().UTC()
	sale := &models.FlashSale{
		ID:          uuid.New(),
		VariationID: variationID,
		Price:       decimal.NewFromInt(price),
		Qty:         qty,
		StartsAt:    now.Add(-time.Hour),
		EndsAt:      now.Add(time.Hour),
	}
	must(t, conn, sale)
	return sale
}

func MustCartItem(t *testing.T, conn *gorm.DB, userID uuid.UUID, v *models.Variation, qty int) *models.CartItem {
	t.Helper()
	item := &models.CartItem{
		ID:          uuid.New(),
		UserID:      userID,
		VariationID: v.ID,
		StoreID:     v.StoreID,
		Qty:         qty,
	}
	must(t, conn, item)
	return item
}

func MustWalletEntry(t *testing.T, conn *gorm.DB, userID uuid.UUID, fund enums.FundType, amount int64) *models.WalletEntry {
	t.Helper()
	entry := &models.WalletEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    decimal.NewFromInt(amount),
		FundType:  fund,
		Reference: uuid.NewString(),
	}
	must(t, conn, entry)
	return entry
}
