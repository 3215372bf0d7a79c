package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/coupons"
)

var hundred = decimal.NewFromInt(100)

// vendorShare is one store's slice of a checkout.
type vendorShare struct {
	StoreID      uuid.UUID
	Lines        []cart.Line
	LineCoupons  []decimal.Decimal
	SubTotal     decimal.Decimal
	CouponAmount decimal.Decimal
}

// splitByStore groups snapshot lines by store in order of first appearance
// and spreads the applied coupon amount across the stores in proportion to
// their uncapped line discounts. res may be nil.
func splitByStore(snap *cart.Snapshot, res *coupons.Result) []vendorShare {
	index := map[uuid.UUID]int{}
	var shares []vendorShare
	var raw [][]decimal.Decimal
	for i, line := range snap.Lines {
		pos, ok := index[line.StoreID]
		if !ok {
			pos = len(shares)
			index[line.StoreID] = pos
			shares = append(shares, vendorShare{StoreID: line.StoreID, SubTotal: decimal.Zero})
			raw = append(raw, nil)
		}
		discount := decimal.Zero
		if res != nil && i < len(res.Lines) {
			discount = res.Lines[i].Amount
		}
		shares[pos].Lines = append(shares[pos].Lines, line)
		shares[pos].SubTotal = shares[pos].SubTotal.Add(line.Total())
		raw[pos] = append(raw[pos], discount)
	}

	total := decimal.Zero
	if res != nil {
		total = res.CouponAmount
	}
	vendorRaw := make([]decimal.Decimal, len(shares))
	for i := range shares {
		vendorRaw[i] = sum(raw[i])
	}
	vendorCoupon := prorate(vendorRaw, total)
	for i := range shares {
		shares[i].CouponAmount = vendorCoupon[i]
		shares[i].LineCoupons = prorate(raw[i], vendorCoupon[i])
	}
	return shares
}

// prorate scales parts so they add up to total exactly. Each part is rounded
// to cents and the last non-zero part takes the residue.
func prorate(parts []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(parts))
	whole := sum(parts)
	last := -1
	for i, p := range parts {
		out[i] = decimal.Zero
		if p.IsPositive() {
			last = i
		}
	}
	if last < 0 || !whole.IsPositive() {
		return out
	}
	if whole.Equal(total) {
		copy(out, parts)
		return out
	}
	assigned := decimal.Zero
	for i, p := range parts {
		if !p.IsPositive() {
			continue
		}
		if i == last {
			out[i] = total.Sub(assigned)
			continue
		}
		out[i] = p.Mul(total).Div(whole).Round(2)
		assigned = assigned.Add(out[i])
	}
	return out
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// storePrice is the vendor payout for a share. The discount only reduces the
// payout when the vendor bears it.
func storePrice(subTotal, coupon, commissionPct decimal.Decimal, vendorBears bool) decimal.Decimal {
	base := subTotal
	if vendorBears {
		base = base.Sub(coupon)
	}
	return base.Mul(commissionPct).Div(hundred).Round(2)
}
