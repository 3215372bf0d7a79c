package wallet

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalRequest is the body of POST /wallet/withdrawals.
type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"money"`
}

// BonusRequest is the body of POST /wallet/bonus.
type BonusRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}
