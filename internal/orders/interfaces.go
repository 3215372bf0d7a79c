package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// StoreOrderGuard is the state a store order must still be in for a guarded
// update to apply.
type StoreOrderGuard struct {
	OrderStatus    enums.OrderStatus
	DeliveryStatus enums.DeliveryStatus
}

// Repository defines persistence for orders and their per-store children.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	OrderIDExists(ctx context.Context, id string) (bool, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateStoreOrder(ctx context.Context, storeOrder *models.StoreOrder) error
	CreateStoreOrderProducts(ctx context.Context, items []models.StoreOrderProduct) error
	CreateOrderAddress(ctx context.Context, addr *models.OrderAddress) error

	FindOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	FindStoreOrder(ctx context.Context, id uuid.UUID) (*models.StoreOrder, error)

	MarkPaid(ctx context.Context, id string, at time.Time, fromWallet, buyNowPayLater bool) (bool, error)
	UpdateStoreOrder(ctx context.Context, id uuid.UUID, guard StoreOrderGuard, changes map[string]any) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error)
}
