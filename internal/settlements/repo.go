package settlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Repository persists vendor settlements and flips the settled gate on store
// orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	SettlementIDExists(ctx context.Context, id string) (bool, error)
	ListEligible(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID, cutoff time.Time) ([]models.StoreOrder, error)
	MarkSettled(ctx context.Context, ids []uuid.UUID, settlementID string, cutoff, at time.Time) (int64, error)
	Create(ctx context.Context, settlement *models.VendorSettlement) error
	Find(ctx context.Context, id string) (*models.VendorSettlement, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) SettlementIDExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.VendorSettlement{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// eligible scopes a store order query to rows that can be paid out: delivered
// on or before cutoff, never refunded and not yet settled.
func eligible(db *gorm.DB, storeID uuid.UUID, cutoff time.Time) *gorm.DB {
	return db.Where(
		"store_id = ? AND settled = ? AND refunded = ? AND delivered = ? AND delivered_at IS NOT NULL AND delivered_at <= ?",
		storeID, false, false, true, cutoff,
	)
}

// ListEligible returns the eligible store orders of storeID. A nil ids slice
// returns all of them; otherwise only the listed rows are considered. Rows
// are locked for the remainder of the transaction.
func (r *repository) ListEligible(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID, cutoff time.Time) ([]models.StoreOrder, error) {
	query := eligible(r.db.WithContext(ctx), storeID, cutoff)
	if ids != nil {
		if len(ids) == 0 {
			return []models.StoreOrder{}, nil
		}
		query = query.Where("id IN ?", ids).Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []models.StoreOrder
	if err := query.Order("delivered_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkSettled settles the given rows. The update repeats the eligibility
// filter so a row settled or refunded concurrently is not counted.
func (r *repository) MarkSettled(ctx context.Context, ids []uuid.UUID, settlementID string, cutoff, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.StoreOrder{}).
		Where("id IN ? AND settled = ? AND refunded = ? AND delivered = ? AND delivered_at <= ?", ids, false, false, true, cutoff).
		Updates(map[string]any{
			"settled":       true,
			"settled_at":    at,
			"settlement_id": settlementID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Create(ctx context.Context, settlement *models.VendorSettlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) Find(ctx context.Context, id string) (*models.VendorSettlement, error) {
	var settlement models.VendorSettlement
	if err := r.db.WithContext(ctx).First(&settlement, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &settlement, nil
}

// MarkProcessed flips processed exactly once.
func (r *repository) MarkProcessed(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorSettlement{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(map[string]any{"processed": true, "processed_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
