package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// Service exposes the cart snapshot and cart mutation operations.
type Service interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error)
	Price(ctx context.Context, tx *gorm.DB, userID uuid.UUID, items []Item) (*Snapshot, error)
	AddItem(ctx context.Context, userID, variationID uuid.UUID, qty int) (*Snapshot, error)
	RemoveItem(ctx context.Context, userID, variationID uuid.UUID) (*Snapshot, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type service struct {
	repo    CartRepository
	catalog product.Repository
	now     func() time.Time
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo CartRepository, catalog product.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{
		repo:    repo,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Snapshot prices the user's current cart.
func (s *service) Snapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, Item{VariationID: row.VariationID, Qty: row.Qty})
	}
	return s.Price(ctx, nil, userID, items)
}

// Price builds a snapshot for arbitrary items from the current catalog. A nil
// tx reads outside any transaction.
func (s *service) Price(ctx context.Context, tx *gorm.DB, userID uuid.UUID, items []Item) (*Snapshot, error) {
	catalog := s.catalog.WithTx(tx)

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VariationID)
	}
	variations, err := catalog.FindVariations(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variations")
	}
	sales, err := catalog.FindActiveFlashSales(ctx, ids, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load flash sales")
	}

	lineages := map[uuid.UUID][]uuid.UUID{}
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		v, ok := variations[item.VariationID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "product is no longer available").
				WithDetails(map[string]any{"variation_id": item.VariationID})
		}
		var categories []uuid.UUID
		if v.Product != nil && v.Product.CategoryID != nil {
			catID := *v.Product.CategoryID
			lineage, cached := lineages[catID]
			if !cached {
				lineage, err = catalog.CategoryLineage(ctx, catID)
				if err != nil {
					return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category lineage")
				}
				lineages[catID] = lineage
			}
			categories = lineage
		}
		var sale *models.FlashSale
		if fs, ok := sales[v.ID]; ok {
			sale = &fs
		}
		lines = append(lines, NewLine(v, sale, categories, item.Qty))
	}
	return newSnapshot(userID, lines), nil
}

// AddItem sets the quantity of a variation in the cart, creating the line if
// needed.
func (s *service) AddItem(ctx context.Context, userID, variationID uuid.UUID, qty int) (*Snapshot, error) {
	if userID == uuid.Nil || variationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and variation id are required")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	priced, err := s.Price(ctx, nil, userID, []Item{{VariationID: variationID, Qty: qty}})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeBadRequest) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variation not found")
		}
		return nil, err
	}
	line := priced.Lines[0]
	if err := line.ValidateStock(); err != nil {
		return nil, err
	}

	item, err := s.repo.FindItem(ctx, userID, variationID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		item = &models.CartItem{UserID: userID, VariationID: variationID, StoreID: line.StoreID}
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	item.Qty = qty
	if err := s.repo.Save(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
	}
	return s.Snapshot(ctx, userID)
}

func (s *service) RemoveItem(ctx context.Context, userID, variationID uuid.UUID) (*Snapshot, error) {
	removed, err := s.repo.DeleteItem(ctx, userID, variationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if removed == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Snapshot(ctx, userID)
}

// Clear empties the cart inside the caller's transaction.
func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	return s.repo.WithTx(tx).DeleteByUser(ctx, userID)
}
