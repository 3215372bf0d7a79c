package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/internal/wallet"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/idgen"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartService interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*cart.Snapshot, error)
	Price(ctx context.Context, tx *gorm.DB, userID uuid.UUID, items []cart.Item) (*cart.Snapshot, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type couponEvaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID, code string, snap *cart.Snapshot) (*coupons.Result, error)
}

type addressBook interface {
	FindForUser(ctx context.Context, userID, addressID uuid.UUID) (*models.Address, error)
}

type walletLedger interface {
	Credit(ctx context.Context, tx *gorm.DB, input wallet.CreditInput) (*models.WalletEntry, error)
	Debit(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal, reference string) (*models.WalletEntry, error)
}

type idGenerator interface {
	Generate(ctx context.Context, prefix string, exists idgen.ExistsFunc) (string, error)
}

// Service runs the order pipeline from checkout to refund.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	CompletePayment(ctx context.Context, input PaymentInput) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, actor Actor, storeOrderID uuid.UUID, next enums.OrderStatus) (*models.StoreOrder, error)
	UpdateDeliveryStatus(ctx context.Context, actor Actor, storeOrderID uuid.UUID, next enums.DeliveryStatus) (*models.StoreOrder, error)
	CancelByUser(ctx context.Context, actor Actor, storeOrderID uuid.UUID) (*models.StoreOrder, error)
	Refund(ctx context.Context, input RefundInput) (*models.StoreOrder, error)
	Get(ctx context.Context, actor Actor, orderID string) (*models.Order, error)
	ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*types.Page[models.Order], error)
}

// ServiceParams bundles the collaborators of the order service.
type ServiceParams struct {
	Repo       Repository
	Tx         txRunner
	Carts      cartService
	Coupons    couponEvaluator
	CouponRepo coupons.Repository
	Catalog    product.Repository
	Stores     *stores.Repository
	Addresses  addressBook
	Wallet     walletLedger
	IDs        idGenerator
	Outbox     outbox.Emitter
	Shipping   ShippingCalculator
	Tax        TaxCalculator
	Metrics    *metrics.PipelineMetrics
	Logger     *logger.Logger
	// GuaranteePeriod is the refund window after delivery.
	GuaranteePeriod time.Duration
}

type service struct {
	repo       Repository
	tx         txRunner
	carts      cartService
	coupons    couponEvaluator
	couponRepo coupons.Repository
	catalog    product.Repository
	stores     *stores.Repository
	addresses  addressBook
	wallet     walletLedger
	ids        idGenerator
	outbox     outbox.Emitter
	shipping   ShippingCalculator
	tax        TaxCalculator
	metrics    *metrics.PipelineMetrics
	logg       *logger.Logger
	guarantee  time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart service required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon evaluator required")
	case params.CouponRepo == nil:
		return nil, fmt.Errorf("coupon repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Stores == nil:
		return nil, fmt.Errorf("store repository required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address book required")
	case params.Wallet == nil:
		return nil, fmt.Errorf("wallet ledger required")
	case params.IDs == nil:
		return nil, fmt.Errorf("id generator required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.GuaranteePeriod < 0 {
		return nil, fmt.Errorf("guarantee period must be >= 0")
	}
	shipping := params.Shipping
	if shipping == nil {
		shipping = FlatShipping{}
	}
	tax := params.Tax
	if tax == nil {
		tax = NoTax{}
	}
	return &service{
		repo:       params.Repo,
		tx:         params.Tx,
		carts:      params.Carts,
		coupons:    params.Coupons,
		couponRepo: params.CouponRepo,
		catalog:    params.Catalog,
		stores:     params.Stores,
		addresses:  params.Addresses,
		wallet:     params.Wallet,
		ids:        params.IDs,
		outbox:     params.Outbox,
		shipping:   shipping,
		tax:        tax,
		metrics:    params.Metrics,
		logg:       params.Logger,
		guarantee:  params.GuaranteePeriod,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get returns an order to its purchaser or an admin.
func (s *service) Get(ctx context.Context, actor Actor, orderID string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.PurchasedBy != actor.UserID && !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, params pagination.Params) (*types.Page[models.Order], error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListOrdersByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	items, next := pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, Key: o.ID}
	})
	return &types.Page[models.Order]{Items: items, NextCursor: next}, nil
}

func (s *service) loadOrder(ctx context.Context, repo Repository, id string) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadStoreOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.StoreOrder, error) {
	so, err := repo.FindStoreOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store order")
	}
	return so, nil
}

// observe records the outcome of a pipeline operation. Business rejections
// are counted apart from failures.
func (s *service) observe(op string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		if typed := pkgerrors.As(err); typed != nil {
			switch typed.Code() {
			case pkgerrors.CodeBadRequest, pkgerrors.CodeValidation, pkgerrors.CodeForbidden,
				pkgerrors.CodeNotFound, pkgerrors.CodeConflict:
				outcome = metrics.OutcomeRejected
			}
		}
	}
	s.metrics.Observe(op, outcome, time.Since(start))
}
