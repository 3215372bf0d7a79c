package product

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// maxCategoryDepth bounds the ancestor walk so a cyclic parent chain cannot
// loop forever.
const maxCategoryDepth = 32

// Repository reads catalog rows and applies the guarded stock mutations used
// at payment time.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Variation, error)
	FindActiveFlashSales(ctx context.Context, variationIDs []uuid.UUID, now time.Time) (map[uuid.UUID]models.FlashSale, error)
	CategoryLineage(ctx context.Context, categoryID uuid.UUID) ([]uuid.UUID, error)
	DecrementStock(ctx context.Context, variationID uuid.UUID, qty int) (bool, error)
	IncrementFlashSaleSold(ctx context.Context, flashSaleID uuid.UUID, qty int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the catalog repository to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindVariations loads variations with their product, keyed by id. Missing
// ids are simply absent from the map.
func (r *repository) FindVariations(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Variation, error) {
	out := make(map[uuid.UUID]models.Variation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Variation
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindActiveFlashSales returns, per variation, the flash sale running at now
// that still has units left. When several overlap the one ending first wins.
func (r *repository) FindActiveFlashSales(ctx context.Context, variationIDs []uuid.UUID, now time.Time) (map[uuid.UUID]models.FlashSale, error) {
	out := make(map[uuid.UUID]models.FlashSale, len(variationIDs))
	if len(variationIDs) == 0 {
		return out, nil
	}
	var rows []models.FlashSale
	if err := r.db.WithContext(ctx).
		Where("variation_id IN ? AND starts_at <= ? AND ends_at > ? AND sold < qty", variationIDs, now, now).
		Order("ends_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if _, ok := out[row.VariationID]; ok {
			continue
		}
		out[row.VariationID] = row
	}
	return out, nil
}

// CategoryLineage returns the category followed by its ancestors, nearest first.
func (r *repository) CategoryLineage(ctx context.Context, categoryID uuid.UUID) ([]uuid.UUID, error) {
	lineage := []uuid.UUID{}
	seen := map[uuid.UUID]struct{}{}
	current := &categoryID
	for depth := 0; current != nil && depth < maxCategoryDepth; depth++ {
		if _, ok := seen[*current]; ok {
			break
		}
		var cat models.Category
		err := r.db.WithContext(ctx).Select("id", "parent_id").First(&cat, "id = ?", *current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		seen[cat.ID] = struct{}{}
		lineage = append(lineage, cat.ID)
		current = cat.ParentID
	}
	return lineage, nil
}

// DecrementStock removes qty units only if that leaves stock non-negative.
// It reports false when the guard rejected the write.
func (r *repository) DecrementStock(ctx context.Context, variationID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE variations
		 SET stock_qty = stock_qty - ?, updated_at = ?
		 WHERE id = ? AND manage_stock = ? AND stock_qty >= ?`,
		qty, time.Now().UTC(), variationID, true, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementFlashSaleSold books qty units against the sale's allocation. It
// reports false when the sale would be oversold.
func (r *repository) IncrementFlashSaleSold(ctx context.Context, flashSaleID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE flash_sales SET sold = sold + ? WHERE id = ? AND sold + ? <= qty`,
		qty, flashSaleID, qty,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
