package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) OrderIDExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateStoreOrder(ctx context.Context, storeOrder *models.StoreOrder) error {
	if storeOrder.ID == uuid.Nil {
		storeOrder.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(storeOrder).Error
}

func (r *repository) CreateStoreOrderProducts(ctx context.Context, items []models.StoreOrderProduct) error {
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreateOrderAddress(ctx context.Context, addr *models.OrderAddress) error {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(addr).Error
}

// FindOrder loads the full aggregate: store orders, their products and the
// address snapshot.
func (r *repository) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("StoreOrders", func(db *gorm.DB) *gorm.DB {
			return db.Order("store_orders.created_at ASC").Order("store_orders.id ASC")
		}).
		Preload("StoreOrders.Products").
		Preload("Address").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrdersByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("purchased_by = ?", userID)
	if cursor != nil {
		query = query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.Order
	if err := query.
		Preload("StoreOrders").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindStoreOrder(ctx context.Context, id uuid.UUID) (*models.StoreOrder, error) {
	var so models.StoreOrder
	if err := r.db.WithContext(ctx).Preload("Products").First(&so, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &so, nil
}

// MarkPaid flips payment_completed exactly once.
func (r *repository) MarkPaid(ctx context.Context, id string, at time.Time, fromWallet, buyNowPayLater bool) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_completed = ?, payment_completed_at = ?, payed_from_wallet = ?, buy_now_pay_later = ?, updated_at = ?
		 WHERE id = ? AND payment_completed = ?`,
		true, at, fromWallet, buyNowPayLater, at, id, false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStoreOrder applies changes only while the row is still in guard's
// state and neither refunded nor settled.
func (r *repository) UpdateStoreOrder(ctx context.Context, id uuid.UUID, guard StoreOrderGuard, changes map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.StoreOrder{}).
		Where("id = ? AND order_status = ? AND delivery_status = ? AND refunded = ? AND settled = ?",
			id, guard.OrderStatus, guard.DeliveryStatus, false, false).
		Updates(changes)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE store_orders SET refunded = ?, refunded_at = ?, refund_amount = ?, updated_at = ?
		 WHERE id = ? AND refunded = ? AND settled = ? AND order_status = ?`,
		true, at, amount, at, id, false, false, enums.OrderStatusCancelled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
