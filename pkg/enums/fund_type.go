package enums

import "fmt"

// FundType classifies wallet ledger entries.
type FundType string

const (
	FundTypePayment      FundType = "PAYMENT"
	FundTypeRefund       FundType = "REFUND"
	FundTypeRegBonus     FundType = "REG_BONUS"
	FundTypeRedeemCredit FundType = "REDEEM_CREDIT"
)

var validFundTypes = []FundType{
	FundTypePayment,
	FundTypeRefund,
	FundTypeRegBonus,
	FundTypeRedeemCredit,
}

func (f FundType) String() string {
	return string(f)
}

func (f FundType) IsValid() bool {
	for _, candidate := range validFundTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// IsWithdrawable reports whether credits of this type are real money that may
// be cashed out.
func (f FundType) IsWithdrawable() bool {
	return f == FundTypePayment || f == FundTypeRefund
}

func ParseFundType(value string) (FundType, error) {
	for _, candidate := range validFundTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fund type %q", value)
}
