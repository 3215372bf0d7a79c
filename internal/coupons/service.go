package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/idgen"
)

type snapshotProvider interface {
	Snapshot(ctx context.Context, userID uuid.UUID) (*cart.Snapshot, error)
}

type membershipChecker interface {
	IsMember(ctx context.Context, storeID, userID uuid.UUID) (bool, error)
}

type codeGenerator interface {
	Generate(ctx context.Context, prefix string, exists idgen.ExistsFunc) (string, error)
}

// Service validates, applies and manages coupons.
type Service interface {
	Apply(ctx context.Context, userID uuid.UUID, code string) (*Result, error)
	Evaluate(ctx context.Context, userID uuid.UUID, code string, snap *cart.Snapshot) (*Result, error)
	Get(ctx context.Context, code string) (*models.Coupon, error)
	Create(ctx context.Context, actor Actor, input CreateInput) (*models.Coupon, error)
	Revoke(ctx context.Context, actor Actor, code string) (*models.Coupon, error)
}

type service struct {
	repo    Repository
	carts   snapshotProvider
	members membershipChecker
	ids     codeGenerator
	now     func() time.Time
}

func NewService(repo Repository, carts snapshotProvider, members membershipChecker, ids codeGenerator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart snapshot provider required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership checker required")
	}
	if ids == nil {
		return nil, fmt.Errorf("code generator required")
	}
	return &service{
		repo:    repo,
		carts:   carts,
		members: members,
		ids:     ids,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// NormalizeCode trims and upper-cases a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Apply evaluates the coupon against the caller's current cart.
func (s *service) Apply(ctx context.Context, userID uuid.UUID, code string) (*Result, error) {
	snap, err := s.carts.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(snap.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "cart is empty")
	}
	return s.Evaluate(ctx, userID, code, snap)
}

// Evaluate runs the validation chain in order and computes the discount.
func (s *service) Evaluate(ctx context.Context, userID uuid.UUID, code string, snap *cart.Snapshot) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot required")
	}
	coupon, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, userID, coupon, snap); err != nil {
		return nil, err
	}

	res := Compute(coupon, snap)
	if res.CouponAmount.IsZero() && !res.FreeShipping {
		return nil, rejected(coupon, "coupon is not applicable to the items in your cart")
	}
	return res, nil
}

func (s *service) validate(ctx context.Context, userID uuid.UUID, c *models.Coupon, snap *cart.Snapshot) error {
	now := s.now()
	if c.Revoke {
		return rejected(c, "coupon has been revoked")
	}
	if now.Before(c.StartDate) {
		return rejected(c, "coupon is not active yet")
	}
	if c.EndDate != nil && !now.Before(*c.EndDate) {
		return rejected(c, "coupon has expired")
	}
	if c.UsageLimit != nil {
		used, err := s.repo.CountCompletedOrders(ctx, c.Code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage")
		}
		if used >= int64(*c.UsageLimit) {
			return rejected(c, "coupon usage limit reached")
		}
	}
	if c.UsageLimitPerUser != nil {
		used, err := s.repo.CountUserOrders(ctx, c.Code, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count coupon usage for user")
		}
		if used >= int64(*c.UsageLimitPerUser) {
			return rejected(c, "you have already used this coupon the maximum number of times")
		}
	}
	if c.MinSpend != nil && snap.SubTotal.LessThan(*c.MinSpend) {
		return rejected(c, fmt.Sprintf("minimum spend for this coupon is %s", c.MinSpend.StringFixed(2)))
	}
	if c.MaxSpend != nil && snap.SubTotal.GreaterThan(*c.MaxSpend) {
		return rejected(c, fmt.Sprintf("maximum spend for this coupon is %s", c.MaxSpend.StringFixed(2)))
	}
	if !userAllowed(Restrictions(c), userID) {
		return rejected(c, "coupon is not available for your account")
	}
	return nil
}

func rejected(c *models.Coupon, msg string) error {
	return pkgerrors.New(pkgerrors.CodeBadRequest, msg).WithDetails(map[string]any{"coupon_code": c.Code})
}

func (s *service) Get(ctx context.Context, code string) (*models.Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

// Create stores a new coupon. Vendors may only create coupons scoped to
// stores they belong to.
func (s *service) Create(ctx context.Context, actor Actor, input CreateInput) (*models.Coupon, error) {
	if actor.Role != enums.UserRoleAdmin && actor.Role != enums.UserRoleVendor {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and admins can create coupons")
	}
	if err := validateCreate(&input, s.now()); err != nil {
		return nil, err
	}
	if actor.Role == enums.UserRoleVendor {
		if len(input.StoreIDs) == 0 && actor.StoreID != nil {
			input.StoreIDs = []uuid.UUID{*actor.StoreID}
		}
		if len(input.StoreIDs) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor coupons must be restricted to a store")
		}
		for _, storeID := range input.StoreIDs {
			ok, err := s.members.IsMember(ctx, storeID, actor.UserID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check store membership")
			}
			if !ok {
				return nil, pkgerrors.New(pkgerrors.CodeForbidden, "vendor is not a member of the store")
			}
		}
	}

	code := NormalizeCode(input.Code)
	if code == "" {
		generated, err := s.ids.Generate(ctx, idgen.PrefixCoupon, s.repo.Exists)
		if err != nil {
			return nil, err
		}
		code = generated
	} else {
		exists, err := s.repo.Exists(ctx, code)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check coupon code")
		}
		if exists {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
	}

	coupon := buildCoupon(code, actor.UserID, input)
	if err := s.repo.Create(ctx, coupon); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return coupon, nil
}

// Revoke soft-disables a coupon. Vendors may only revoke their own coupons.
func (s *service) Revoke(ctx context.Context, actor Actor, code string) (*models.Coupon, error) {
	coupon, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case enums.UserRoleAdmin:
	case enums.UserRoleVendor:
		if coupon.CreatedBy != actor.UserID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "coupon belongs to another vendor")
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors and admins can revoke coupons")
	}
	if coupon.Revoke {
		return coupon, nil
	}
	if _, err := s.repo.SetRevoked(ctx, coupon.Code); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke coupon")
	}
	coupon.Revoke = true
	return coupon, nil
}

func validateCreate(input *CreateInput, now time.Time) error {
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid coupon type")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if input.Type == enums.CouponTypePercentage && input.Amount.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage cannot exceed 100")
	}
	if input.StartDate.IsZero() {
		input.StartDate = now
	}
	if input.EndDate != nil && !input.EndDate.After(input.StartDate) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
	}
	if input.MinSpend != nil && input.MaxSpend != nil && input.MinSpend.GreaterThan(*input.MaxSpend) {
		return pkgerrors.New(pkgerrors.CodeValidation, "min spend cannot exceed max spend")
	}
	for _, v := range []*decimal.Decimal{input.MinSpend, input.MaxSpend, input.MaxCouponAmount} {
		if v != nil && v.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "spend bounds and cap must be non-negative")
		}
	}
	return nil
}

func buildCoupon(code string, createdBy uuid.UUID, in CreateInput) *models.Coupon {
	c := &models.Coupon{
		Code:                code,
		Type:                in.Type,
		Amount:              in.Amount,
		StartDate:           in.StartDate.UTC(),
		EndDate:             in.EndDate,
		UsageLimit:          in.UsageLimit,
		UsageLimitPerUser:   in.UsageLimitPerUser,
		ProductQtyLimit:     in.ProductQtyLimit,
		MinSpend:            in.MinSpend,
		MaxSpend:            in.MaxSpend,
		MaxCouponAmount:     in.MaxCouponAmount,
		EnableFreeShipping:  in.EnableFreeShipping,
		VendorBearsDiscount: in.VendorBearsDiscount,
		CreatedBy:           createdBy,
	}
	for _, id := range dedupe(in.ProductIDs) {
		c.Products = append(c.Products, models.CouponProduct{CouponCode: code, ProductID: id})
	}
	for _, id := range dedupe(in.StoreIDs) {
		c.Stores = append(c.Stores, models.CouponStore{CouponCode: code, StoreID: id})
	}
	for _, id := range dedupe(in.UserIDs) {
		c.Users = append(c.Users, models.CouponUser{CouponCode: code, UserID: id})
	}
	for _, id := range dedupe(in.CategoryIDs) {
		c.Categories = append(c.Categories, models.CouponCategory{CouponCode: code, CategoryID: id})
	}
	return c
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
