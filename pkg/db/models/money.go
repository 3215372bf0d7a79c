package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// VendorSettlement batches delivered store orders into one payable amount.
type VendorSettlement struct {
	ID            string          `gorm:"column:id;type:text;primaryKey" json:"settlement_id"`
	StoreID       uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index" json:"store_id"`
	StoreOrderIDs []uuid.UUID     `gorm:"column:store_order_ids;type:jsonb;serializer:json;not null" json:"store_order_ids"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Processed     bool            `gorm:"column:processed;not null;default:false" json:"processed"`
	ProcessedAt   *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedBy     uuid.UUID       `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// WalletEntry is append-only. Debits carry a negative Amount.
type WalletEntry struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	FundType  enums.FundType  `gorm:"column:fund_type;type:fund_type;not null;uniqueIndex:idx_wallet_entries_fund_reference" json:"fund_type"`
	Reference string          `gorm:"column:reference;not null;uniqueIndex:idx_wallet_entries_fund_reference" json:"reference"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

type Withdrawal struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null" json:"amount"`
	Processed   bool            `gorm:"column:processed;not null;default:false" json:"processed"`
	ProcessedAt *time.Time      `gorm:"column:processed_at" json:"processed_at,omitempty"`
	IsDeclined  bool            `gorm:"column:is_declined;not null;default:false" json:"is_declined"`
	DeclinedAt  *time.Time      `gorm:"column:declined_at" json:"declined_at,omitempty"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
