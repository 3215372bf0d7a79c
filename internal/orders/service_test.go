package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/address"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
	product "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/stores"
	"github.com/angelmondragon/marketplace-backend/internal/wallet"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/idgen"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type harness struct {
	svc      Service
	wallet   wallet.Service
	conn     *gorm.DB
	customer *models.User
	vendor   *models.User
	admin    *models.User
	addr     *models.Address
}

func newHarness(t *testing.T, opts ...func(*ServiceParams)) *harness {
	t.Helper()
	client, conn := dbtest.Client(t)

	catalog := product.NewRepository(conn)
	carts, err := cart.NewService(cart.NewRepository(conn), catalog)
	require.NoError(t, err)
	storeRepo := stores.NewRepository(conn)
	ids, err := idgen.New(5, nil)
	require.NoError(t, err)
	couponRepo := coupons.NewRepository(conn)
	couponSvc, err := coupons.NewService(couponRepo, carts, storeRepo, ids)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	ledger, err := wallet.NewService(wallet.NewRepository(conn), client, emitter, wallet.Options{})
	require.NoError(t, err)

	params := ServiceParams{
		Repo:            NewRepository(conn),
		Tx:              client,
		Carts:           carts,
		Coupons:         couponSvc,
		CouponRepo:      couponRepo,
		Catalog:         catalog,
		Stores:          storeRepo,
		Addresses:       address.NewRepository(conn),
		Wallet:          ledger,
		IDs:             ids,
		Outbox:          emitter,
		GuaranteePeriod: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	customer := dbtest.MustUser(t, conn, enums.UserRoleCustomer)
	return &harness{
		svc:      svc,
		wallet:   ledger,
		conn:     conn,
		customer: customer,
		vendor:   dbtest.MustUser(t, conn, enums.UserRoleVendor),
		admin:    dbtest.MustUser(t, conn, enums.UserRoleAdmin),
		addr:     dbtest.MustAddress(t, conn, customer.ID),
	}
}

func (h *harness) checkout(t *testing.T, code *string) *models.Order {
	t.Helper()
	order, err := h.svc.Create(context.Background(), CreateInput{
		UserID:     h.customer.ID,
		AddressID:  h.addr.ID,
		CouponCode: code,
	})
	require.NoError(t, err)
	return order
}

func (h *harness) pay(orderID string, fromWallet bool) (*models.Order, error) {
	return h.svc.CompletePayment(context.Background(), PaymentInput{
		OrderID:         orderID,
		Actor:           actorOf(h.customer),
		PayedFromWallet: fromWallet,
	})
}

func (h *harness) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (h *harness) variation(t *testing.T, id uuid.UUID) models.Variation {
	t.Helper()
	var v models.Variation
	require.NoError(t, h.conn.First(&v, "id = ?", id).Error)
	return v
}

func actorOf(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, code), "expected %s, got %v", code, err)
}

func storeOrderFor(t *testing.T, order *models.Order, storeID uuid.UUID) models.StoreOrder {
	t.Helper()
	for _, so := range order.StoreOrders {
		if so.StoreID == storeID {
			return so
		}
	}
	t.Fatalf("no store order for store %s", storeID)
	return models.StoreOrder{}
}

func TestCreateSplitsCartPerStore(t *testing.T) {
	h := newHarness(t)
	storeA := dbtest.MustStore(t, h.conn, h.vendor.ID, dbtest.WithCommission(90))
	storeB := dbtest.MustStore(t, h.conn, dbtest.MustUser(t, h.conn, enums.UserRoleVendor).ID)
	va := dbtest.MustVariation(t, h.conn, storeA.ID, nil, 1200, dbtest.WithStock(10))
	vb := dbtest.MustVariation(t, h.conn, storeB.ID, nil, 800, dbtest.WithStock(50))
	dbtest.MustCartItem(t, h.conn, h.customer.ID, va, 2)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, vb, 40)

	maxAmount := decimal.NewFromInt(10000)
	coupon := &models.Coupon{
		Code:            "HALFB",
		Type:            enums.CouponTypePercentage,
		Amount:          decimal.NewFromInt(50),
		StartDate:       time.Now().UTC().Add(-time.Hour),
		MaxCouponAmount: &maxAmount,
		CreatedBy:       h.admin.ID,
		Stores:          []models.CouponStore{{StoreID: storeB.ID}},
	}
	require.NoError(t, h.conn.Create(coupon).Error)

	code := "HALFB"
	order := h.checkout(t, &code)

	assert.Contains(t, order.ID, idgen.PrefixOrder)
	assert.True(t, order.SubTotal.Equal(decimal.NewFromInt(34400)), order.SubTotal.String())
	assert.True(t, order.CouponAmount.Equal(decimal.NewFromInt(10000)), order.CouponAmount.String())
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(24400)), order.Amount.String())
	require.NotNil(t, order.CouponCode)
	assert.Equal(t, "HALFB", *order.CouponCode)
	require.Len(t, order.StoreOrders, 2)
	require.NotNil(t, order.Address)
	assert.Equal(t, h.addr.Line1, order.Address.Line1)

	soA := storeOrderFor(t, order, storeA.ID)
	soB := storeOrderFor(t, order, storeB.ID)
	assert.True(t, soA.CouponAmount.IsZero())
	assert.True(t, soA.Amount.Equal(decimal.NewFromInt(2400)))
	assert.True(t, soA.StorePrice.Equal(decimal.NewFromInt(2160)), soA.StorePrice.String())
	assert.True(t, soB.CouponAmount.Equal(decimal.NewFromInt(10000)))
	assert.True(t, soB.Amount.Equal(decimal.NewFromInt(22000)))
	assert.True(t, soB.StorePrice.Equal(decimal.NewFromInt(32000)), soB.StorePrice.String())
	require.Len(t, soB.Products, 1)
	assert.True(t, soB.Products[0].CouponAmount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, 40, soB.Products[0].Qty)

	total := decimal.Zero
	for _, so := range order.StoreOrders {
		total = total.Add(so.Amount)
		assert.Equal(t, enums.OrderStatusPending, so.OrderStatus)
		assert.Equal(t, enums.DeliveryStatusNotPicked, so.DeliveryStatus)
	}
	assert.True(t, total.Equal(order.Amount), "store orders must add up to the order amount")

	var cartItems int64
	require.NoError(t, h.conn.Model(&models.CartItem{}).Where("user_id = ?", h.customer.ID).Count(&cartItems).Error)
	assert.Zero(t, cartItems)
	assert.Equal(t, int64(1), h.countEvents(t, enums.EventOrderCreated))
	assert.False(t, order.PaymentCompleted)
}

type failingAddressRepo struct {
	Repository
}

func (r failingAddressRepo) WithTx(tx *gorm.DB) Repository {
	return failingAddressRepo{Repository: r.Repository.WithTx(tx)}
}

func (failingAddressRepo) CreateOrderAddress(context.Context, *models.OrderAddress) error {
	return errors.New("connection reset")
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Repo = failingAddressRepo{Repository: p.Repo}
	})
	storeA := dbtest.MustStore(t, h.conn, h.vendor.ID)
	storeB := dbtest.MustStore(t, h.conn, dbtest.MustUser(t, h.conn, enums.UserRoleVendor).ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, storeA.ID, nil, 300), 1)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, storeB.ID, nil, 500), 2)

	_, err := h.svc.Create(context.Background(), CreateInput{UserID: h.customer.ID, AddressID: h.addr.ID})
	requireCode(t, err, pkgerrors.CodeDependency)

	for _, model := range []any{&models.Order{}, &models.StoreOrder{}, &models.StoreOrderProduct{}, &models.OrderAddress{}} {
		var count int64
		require.NoError(t, h.conn.Model(model).Count(&count).Error)
		assert.Zero(t, count, "%T rows left behind", model)
	}
	var cartItems int64
	require.NoError(t, h.conn.Model(&models.CartItem{}).Where("user_id = ?", h.customer.ID).Count(&cartItems).Error)
	assert.Equal(t, int64(2), cartItems, "cart must survive a failed checkout")
	assert.Zero(t, h.countEvents(t, enums.EventOrderCreated))
}

func TestCreateRejectsEmptyCart(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), CreateInput{UserID: h.customer.ID, AddressID: h.addr.ID})
	requireCode(t, err, pkgerrors.CodeBadRequest)
}

func TestCreateRejectsQtyAboveStock(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100, dbtest.WithStock(3))
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 5)

	_, err := h.svc.Create(context.Background(), CreateInput{UserID: h.customer.ID, AddressID: h.addr.ID})
	requireCode(t, err, pkgerrors.CodeBadRequest)

	var orders int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
}

func TestCreateRejectsForeignAddress(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	other := dbtest.MustUser(t, h.conn, enums.UserRoleCustomer)
	foreign := dbtest.MustAddress(t, h.conn, other.ID)

	_, err := h.svc.Create(context.Background(), CreateInput{UserID: h.customer.ID, AddressID: foreign.ID})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestPaymentConsumesStockOnce(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100, dbtest.WithStock(10))
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 5)
	order := h.checkout(t, nil)

	paid, err := h.pay(order.ID, false)
	require.NoError(t, err)
	assert.True(t, paid.PaymentCompleted)
	require.NotNil(t, paid.PaymentCompletedAt)
	assert.Equal(t, 5, h.variation(t, v.ID).StockQty)
	assert.Equal(t, int64(1), h.countEvents(t, enums.EventOrderPaid))

	_, err = h.pay(order.ID, false)
	requireCode(t, err, pkgerrors.CodeBadRequest)
	assert.Equal(t, 5, h.variation(t, v.ID).StockQty)

	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 6)
	_, err = h.svc.Create(context.Background(), CreateInput{UserID: h.customer.ID, AddressID: h.addr.ID})
	requireCode(t, err, pkgerrors.CodeBadRequest)
}

func TestPaymentFromWalletDebitsBalance(t *testing.T) {
	h := newHarness(t)
	dbtest.MustWalletEntry(t, h.conn, h.customer.ID, enums.FundTypePayment, 1200)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 200)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	order := h.checkout(t, nil)

	paid, err := h.pay(order.ID, true)
	require.NoError(t, err)
	assert.True(t, paid.PayedFromWallet)

	balances, err := h.wallet.Balance(context.Background(), h.customer.ID)
	require.NoError(t, err)
	assert.True(t, balances.Balance.Equal(decimal.NewFromInt(1000)), balances.Balance.String())

	var debit models.WalletEntry
	require.NoError(t, h.conn.Where("user_id = ? AND fund_type = ?", h.customer.ID, enums.FundTypeRedeemCredit).First(&debit).Error)
	assert.Equal(t, order.ID, debit.Reference)
	assert.True(t, debit.Amount.Equal(decimal.NewFromInt(-200)))
}

func TestPaymentFromWalletRollsBackOnInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	dbtest.MustWalletEntry(t, h.conn, h.customer.ID, enums.FundTypePayment, 100)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 200, dbtest.WithStock(4))
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	order := h.checkout(t, nil)

	_, err := h.pay(order.ID, true)
	requireCode(t, err, pkgerrors.CodeBadRequest)

	reloaded, err := h.svc.Get(context.Background(), actorOf(h.customer), order.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.PaymentCompleted)
	assert.Equal(t, 4, h.variation(t, v.ID).StockQty)
}

func TestPaymentRejectsChangedPrices(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100, dbtest.WithStock(10))
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 2)
	order := h.checkout(t, nil)

	require.NoError(t, h.conn.Model(&models.Variation{}).Where("id = ?", v.ID).
		Update("price", decimal.NewFromInt(150)).Error)

	_, err := h.pay(order.ID, false)
	requireCode(t, err, pkgerrors.CodeBadRequest)
	assert.Equal(t, 10, h.variation(t, v.ID).StockQty)
}

func TestPaymentAuthorization(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	order := h.checkout(t, nil)

	stranger := dbtest.MustUser(t, h.conn, enums.UserRoleCustomer)
	_, err := h.svc.CompletePayment(context.Background(), PaymentInput{OrderID: order.ID, Actor: actorOf(stranger)})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = h.svc.CompletePayment(context.Background(), PaymentInput{OrderID: order.ID, Actor: actorOf(stranger), Admin: true})
	requireCode(t, err, pkgerrors.CodeForbidden)

	paid, err := h.svc.CompletePayment(context.Background(), PaymentInput{OrderID: order.ID, Actor: actorOf(h.admin), Admin: true})
	require.NoError(t, err)
	assert.True(t, paid.PaymentCompleted)

	_, err = h.svc.CompletePayment(context.Background(), PaymentInput{OrderID: "ORD-MISSING1", Actor: actorOf(h.customer)})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestPaymentEnforcesCouponUsageLimit(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100, dbtest.WithStock(10))
	limit := 1
	require.NoError(t, h.conn.Create(&models.Coupon{
		Code:       "ONCE",
		Type:       enums.CouponTypePercentage,
		Amount:     decimal.NewFromInt(10),
		StartDate:  time.Now().UTC().Add(-time.Hour),
		UsageLimit: &limit,
		CreatedBy:  h.admin.ID,
	}).Error)
	code := "ONCE"

	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	first := h.checkout(t, &code)

	other := dbtest.MustUser(t, h.conn, enums.UserRoleCustomer)
	otherAddr := dbtest.MustAddress(t, h.conn, other.ID)
	dbtest.MustCartItem(t, h.conn, other.ID, v, 2)
	second, err := h.svc.Create(context.Background(), CreateInput{UserID: other.ID, AddressID: otherAddr.ID, CouponCode: &code})
	require.NoError(t, err, "neither order is paid yet")

	_, err = h.pay(first.ID, false)
	require.NoError(t, err)

	_, err = h.svc.CompletePayment(context.Background(), PaymentInput{OrderID: second.ID, Actor: actorOf(other)})
	requireCode(t, err, pkgerrors.CodeBadRequest)

	var paid int64
	require.NoError(t, h.conn.Model(&models.Order{}).
		Where("coupon_code = ? AND payment_completed = ?", code, true).
		Count(&paid).Error)
	assert.Equal(t, int64(1), paid)
	assert.Equal(t, 9, h.variation(t, v.ID).StockQty, "rejected payment must not consume stock")
}

func TestPaymentEnforcesCouponUsageLimitPerUser(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100)
	require.NoError(t, h.conn.Create(&models.Coupon{
		Code:      "REPEAT",
		Type:      enums.CouponTypePercentage,
		Amount:    decimal.NewFromInt(10),
		StartDate: time.Now().UTC().Add(-time.Hour),
		CreatedBy: h.admin.ID,
	}).Error)
	code := "REPEAT"

	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	first := h.checkout(t, &code)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
	second := h.checkout(t, &code)

	require.NoError(t, h.conn.Model(&models.Coupon{}).Where("code = ?", code).
		Update("usage_limit_per_user", 1).Error)

	_, err := h.pay(first.ID, false)
	require.NoError(t, err)
	_, err = h.pay(second.ID, false)
	requireCode(t, err, pkgerrors.CodeBadRequest)
}

func TestPaymentAutoCompletesStoreOrders(t *testing.T) {
	h := newHarness(t)
	auto := dbtest.MustStore(t, h.conn, h.vendor.ID, dbtest.WithAutoComplete())
	manual := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, auto.ID, nil, 100), 1)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, manual.ID, nil, 100), 1)
	order := h.checkout(t, nil)

	paid, err := h.pay(order.ID, false)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, storeOrderFor(t, paid, auto.ID).OrderStatus)
	assert.Equal(t, enums.OrderStatusPending, storeOrderFor(t, paid, manual.ID).OrderStatus)
	assert.Equal(t, int64(1), h.countEvents(t, enums.EventStoreOrderStatusChanged))
}

func TestPaymentCountsFlashSaleUnits(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 500, dbtest.WithStock(10))
	sale := dbtest.MustFlashSale(t, h.conn, v.ID, 300, 3)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 2)
	order := h.checkout(t, nil)
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(600)), order.Amount.String())

	_, err := h.pay(order.ID, false)
	require.NoError(t, err)

	var reloaded models.FlashSale
	require.NoError(t, h.conn.First(&reloaded, "id = ?", sale.ID).Error)
	assert.Equal(t, 2, reloaded.Sold)
	assert.Equal(t, 8, h.variation(t, v.ID).StockQty)
}

func TestPaymentRejectsCancelledStoreOrder(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, store.ID, nil, 100), 1)
	order := h.checkout(t, nil)

	_, err := h.svc.CancelByUser(context.Background(), actorOf(h.customer), order.StoreOrders[0].ID)
	require.NoError(t, err)

	_, err = h.pay(order.ID, false)
	requireCode(t, err, pkgerrors.CodeBadRequest)
}

func TestStoreOrderLifecycle(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, store.ID, nil, 100), 1)
	order := h.checkout(t, nil)
	soID := order.StoreOrders[0].ID
	ctx := context.Background()
	vendor := actorOf(h.vendor)

	outsider := dbtest.MustUser(t, h.conn, enums.UserRoleVendor)
	_, err := h.svc.UpdateOrderStatus(ctx, actorOf(outsider), soID, enums.OrderStatusCompleted)
	requireCode(t, err, pkgerrors.CodeForbidden)

	so, err := h.svc.UpdateOrderStatus(ctx, vendor, soID, enums.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, so.OrderStatus)

	_, err = h.svc.UpdateDeliveryStatus(ctx, vendor, soID, enums.DeliveryStatusDelivered)
	requireCode(t, err, pkgerrors.CodeBadRequest)

	_, err = h.pay(order.ID, false)
	require.NoError(t, err)

	so, err = h.svc.UpdateDeliveryStatus(ctx, vendor, soID, enums.DeliveryStatusInTransit)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusInTransit, so.DeliveryStatus)

	_, err = h.svc.UpdateDeliveryStatus(ctx, vendor, soID, enums.DeliveryStatusPicked)
	requireCode(t, err, pkgerrors.CodeBadRequest)

	so, err = h.svc.UpdateDeliveryStatus(ctx, vendor, soID, enums.DeliveryStatusDelivered)
	require.NoError(t, err)
	assert.True(t, so.Delivered)
	require.NotNil(t, so.DeliveredAt)

	_, err = h.svc.CancelByUser(ctx, actorOf(h.customer), soID)
	requireCode(t, err, pkgerrors.CodeBadRequest)

	so, err = h.svc.UpdateDeliveryStatus(ctx, actorOf(h.admin), soID, enums.DeliveryStatusAudited)
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusAudited, so.DeliveryStatus)

	assert.Equal(t, int64(4), h.countEvents(t, enums.EventStoreOrderStatusChanged))
}

func TestVendorCancelCancelsDelivery(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, store.ID, nil, 100), 1)
	order := h.checkout(t, nil)

	so, err := h.svc.UpdateOrderStatus(context.Background(), actorOf(h.vendor), order.StoreOrders[0].ID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, so.OrderStatus)
	assert.Equal(t, enums.DeliveryStatusCancelled, so.DeliveryStatus)
	require.NotNil(t, so.CancelledBy)
	assert.Equal(t, h.vendor.ID, *so.CancelledBy)
}

func TestCancelByUserRequiresPurchaser(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, store.ID, nil, 100), 1)
	order := h.checkout(t, nil)

	_, err := h.svc.CancelByUser(context.Background(), actorOf(h.vendor), order.StoreOrders[0].ID)
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestRefundCreditsWalletOnce(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, store.ID, nil, 250), 2)
	order := h.checkout(t, nil)
	soID := order.StoreOrders[0].ID
	ctx := context.Background()

	_, err := h.pay(order.ID, false)
	require.NoError(t, err)

	_, err = h.svc.Refund(ctx, RefundInput{StoreOrderID: soID, Actor: actorOf(h.admin), Amount: decimal.NewFromInt(500)})
	requireCode(t, err, pkgerrors.CodeBadRequest)

	_, err = h.svc.CancelByUser(ctx, actorOf(h.customer), soID)
	require.NoError(t, err)

	_, err = h.svc.Refund(ctx, RefundInput{StoreOrderID: soID, Actor: actorOf(h.customer), Amount: decimal.NewFromInt(500)})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = h.svc.Refund(ctx, RefundInput{StoreOrderID: soID, Actor: actorOf(h.admin), Amount: decimal.NewFromInt(501)})
	requireCode(t, err, pkgerrors.CodeBadRequest)

	so, err := h.svc.Refund(ctx, RefundInput{StoreOrderID: soID, Actor: actorOf(h.admin), Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.True(t, so.Refunded)
	require.NotNil(t, so.RefundAmount)
	assert.True(t, so.RefundAmount.Equal(decimal.NewFromInt(500)))

	_, err = h.svc.Refund(ctx, RefundInput{StoreOrderID: soID, Actor: actorOf(h.admin), Amount: decimal.NewFromInt(500)})
	requireCode(t, err, pkgerrors.CodeBadRequest)

	var refunds int64
	require.NoError(t, h.conn.Model(&models.WalletEntry{}).
		Where("user_id = ? AND fund_type = ? AND reference = ?", h.customer.ID, enums.FundTypeRefund, soID.String()).
		Count(&refunds).Error)
	assert.Equal(t, int64(1), refunds)

	balances, err := h.wallet.Balance(ctx, h.customer.ID)
	require.NoError(t, err)
	assert.True(t, balances.Balance.Equal(decimal.NewFromInt(500)))
	assert.True(t, balances.Withdrawable.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, int64(1), h.countEvents(t, enums.EventStoreOrderRefunded))
}

func TestRefundRejectsAfterGuaranteeWindow(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	dbtest.MustCartItem(t, h.conn, h.customer.ID, dbtest.MustVariation(t, h.conn, store.ID, nil, 100), 1)
	order := h.checkout(t, nil)
	soID := order.StoreOrders[0].ID
	ctx := context.Background()

	_, err := h.pay(order.ID, false)
	require.NoError(t, err)
	_, err = h.svc.UpdateOrderStatus(ctx, actorOf(h.vendor), soID, enums.OrderStatusCancelled)
	require.NoError(t, err)

	deliveredAt := time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, h.conn.Model(&models.StoreOrder{}).Where("id = ?", soID).
		Update("delivered_at", deliveredAt).Error)

	_, err = h.svc.Refund(ctx, RefundInput{StoreOrderID: soID, Actor: actorOf(h.admin), Amount: decimal.NewFromInt(100)})
	requireCode(t, err, pkgerrors.CodeBadRequest)
}

func TestGetAndListMine(t *testing.T) {
	h := newHarness(t)
	store := dbtest.MustStore(t, h.conn, h.vendor.ID)
	v := dbtest.MustVariation(t, h.conn, store.ID, nil, 100)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		dbtest.MustCartItem(t, h.conn, h.customer.ID, v, 1)
		ids = append(ids, h.checkout(t, nil).ID)
	}

	_, err := h.svc.Get(ctx, actorOf(h.vendor), ids[0])
	requireCode(t, err, pkgerrors.CodeForbidden)
	got, err := h.svc.Get(ctx, actorOf(h.admin), ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], got.ID)

	first, err := h.svc.ListMine(ctx, h.customer.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := h.svc.ListMine(ctx, h.customer.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)

	seen := map[string]bool{}
	for _, o := range append(first.Items, second.Items...) {
		seen[o.ID] = true
	}
	for _, id := range ids {
		assert.True(t, seen[id], "order %s missing from listing", id)
	}

	_, err = h.svc.ListMine(ctx, h.customer.ID, pagination.Params{Cursor: "%%%"})
	requireCode(t, err, pkgerrors.CodeValidation)
}
