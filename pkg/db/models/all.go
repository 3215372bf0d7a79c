package models

// All lists every persisted model, parents first. It backs AutoMigrate for
// sqlite runs; postgres schemas come from the goose migrations.
func All() []any {
	return []any{
		&User{},
		&Address{},
		&Store{},
		&StoreMember{},
		&Category{},
		&Product{},
		&Variation{},
		&FlashSale{},
		&CartItem{},
		&Coupon{},
		&CouponProduct{},
		&CouponStore{},
		&CouponUser{},
		&CouponCategory{},
		&Order{},
		&OrderAddress{},
		&StoreOrder{},
		&StoreOrderProduct{},
		&VendorSettlement{},
		&WalletEntry{},
		&Withdrawal{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
