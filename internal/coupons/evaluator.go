package coupons

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// LineDiscount is the uncapped discount computed for one snapshot line.
type LineDiscount struct {
	VariationID uuid.UUID
	StoreID     uuid.UUID
	Eligible    bool
	Amount      decimal.Decimal
}

// Result is the outcome of applying a coupon to a cart snapshot. Lines is
// index-aligned with Snapshot.Lines.
type Result struct {
	Coupon                 *models.Coupon
	Snapshot               *cart.Snapshot
	SubTotal               decimal.Decimal
	CouponAmount           decimal.Decimal
	CouponAmountWithoutCap decimal.Decimal
	FreeShipping           bool
	Lines                  []LineDiscount
}

// Capped reports whether max_coupon_amount reduced the discount.
func (r *Result) Capped() bool {
	return r.CouponAmount.LessThan(r.CouponAmountWithoutCap)
}

// Compute works out the discount of c over snap without checking validity
// windows or usage. It is shared by coupon application and the payment
// recompute. A FIXED_AMOUNT coupon grants its value once for the whole cart,
// capped at the value of the eligible lines.
func Compute(c *models.Coupon, snap *cart.Snapshot) *Result {
	rules := Restrictions(c)
	res := &Result{
		Coupon:       c,
		Snapshot:     snap,
		SubTotal:     snap.SubTotal,
		FreeShipping: c.EnableFreeShipping,
		Lines:        make([]LineDiscount, len(snap.Lines)),
	}

	eligibleTotal := decimal.Zero
	for i, line := range snap.Lines {
		ld := LineDiscount{VariationID: line.VariationID, StoreID: line.StoreID, Amount: decimal.Zero}
		if lineEligible(rules, line) {
			ld.Eligible = true
			qty := couponableQty(c, line.Qty)
			base := line.Price().Mul(decimal.NewFromInt(int64(qty)))
			eligibleTotal = eligibleTotal.Add(base)
			if c.Type == enums.CouponTypePercentage {
				ld.Amount = base.Mul(c.Amount).Div(hundred).Round(2)
			} else {
				ld.Amount = base
			}
		}
		res.Lines[i] = ld
	}

	uncapped := decimal.Zero
	switch c.Type {
	case enums.CouponTypeFixedAmount:
		uncapped = decimal.Min(c.Amount, eligibleTotal)
		spreadFixed(res.Lines, uncapped, eligibleTotal)
	default:
		for _, ld := range res.Lines {
			uncapped = uncapped.Add(ld.Amount)
		}
	}

	res.CouponAmountWithoutCap = uncapped
	res.CouponAmount = uncapped
	if c.MaxCouponAmount != nil && uncapped.GreaterThan(*c.MaxCouponAmount) {
		res.CouponAmount = *c.MaxCouponAmount
	}
	return res
}

func couponableQty(c *models.Coupon, qty int) int {
	if c.ProductQtyLimit != nil && *c.ProductQtyLimit < qty {
		return *c.ProductQtyLimit
	}
	return qty
}

// spreadFixed replaces each eligible line's base value with its share of the
// fixed amount. The last eligible line takes the rounding residue.
func spreadFixed(lines []LineDiscount, amount, eligibleTotal decimal.Decimal) {
	last := -1
	for i := range lines {
		if lines[i].Eligible {
			last = i
		}
	}
	if last < 0 || eligibleTotal.IsZero() {
		for i := range lines {
			lines[i].Amount = decimal.Zero
		}
		return
	}
	assigned := decimal.Zero
	for i := range lines {
		if !lines[i].Eligible {
			continue
		}
		if i == last {
			lines[i].Amount = amount.Sub(assigned)
			continue
		}
		share := lines[i].Amount.Mul(amount).Div(eligibleTotal).Round(2)
		lines[i].Amount = share
		assigned = assigned.Add(share)
	}
}
