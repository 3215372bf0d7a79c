package coupons

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Restriction is one eligibility dimension of a coupon. The concrete types
// below are the only implementations.
type Restriction interface {
	restriction()
}

type idSet map[uuid.UUID]struct{}

func (s idSet) has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Unrestricted applies the coupon to the whole order.
type Unrestricted struct{}

type ByProduct struct{ IDs idSet }

type ByStore struct{ IDs idSet }

// ByCategory matches a line when its category or any ancestor is listed.
type ByCategory struct{ IDs idSet }

// ByUser gates who may apply the coupon; it does not narrow lines.
type ByUser struct{ IDs idSet }

func (Unrestricted) restriction() {}
func (ByProduct) restriction()    {}
func (ByStore) restriction()      {}
func (ByCategory) restriction()   {}
func (ByUser) restriction()       {}

// Restrictions derives the coupon's restriction list from its join rows.
// A coupon without any set yields a single Unrestricted.
func Restrictions(c *models.Coupon) []Restriction {
	var out []Restriction
	if len(c.Products) > 0 {
		ids := idSet{}
		for _, p := range c.Products {
			ids[p.ProductID] = struct{}{}
		}
		out = append(out, ByProduct{IDs: ids})
	}
	if len(c.Stores) > 0 {
		ids := idSet{}
		for _, s := range c.Stores {
			ids[s.StoreID] = struct{}{}
		}
		out = append(out, ByStore{IDs: ids})
	}
	if len(c.Categories) > 0 {
		ids := idSet{}
		for _, cat := range c.Categories {
			ids[cat.CategoryID] = struct{}{}
		}
		out = append(out, ByCategory{IDs: ids})
	}
	if len(c.Users) > 0 {
		ids := idSet{}
		for _, u := range c.Users {
			ids[u.UserID] = struct{}{}
		}
		out = append(out, ByUser{IDs: ids})
	}
	if len(out) == 0 {
		out = append(out, Unrestricted{})
	}
	return out
}

// lineEligible reports whether the line is discounted. Line-scoped sets are
// OR-combined and the first match wins; when no line-scoped set exists every
// line is eligible.
func lineEligible(rules []Restriction, line cart.Line) bool {
	scoped := false
	for _, rule := range rules {
		switch r := rule.(type) {
		case Unrestricted:
			return true
		case ByProduct:
			scoped = true
			if r.IDs.has(line.ProductID) {
				return true
			}
		case ByStore:
			scoped = true
			if r.IDs.has(line.StoreID) {
				return true
			}
		case ByCategory:
			scoped = true
			for _, id := range line.Categories {
				if r.IDs.has(id) {
					return true
				}
			}
		case ByUser:
		}
	}
	return !scoped
}

func userAllowed(rules []Restriction, userID uuid.UUID) bool {
	for _, rule := range rules {
		if r, ok := rule.(ByUser); ok {
			return r.IDs.has(userID)
		}
	}
	return true
}
