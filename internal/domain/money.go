package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ApprovalTolerance is the largest absolute difference between an approved
// amount and an order total that still verifies. It absorbs rounding
// artifacts from fixed-point conversion: 0.01 of the payment currency.
var ApprovalTolerance = decimal.RequireFromString("0.01")

func WithinTolerance(approved, total decimal.Decimal) bool {
	return approved.Sub(total).Abs().LessThanOrEqual(ApprovalTolerance)
}

// NormalizeAmount rounds to the currency's two fractional digits. Applied
// before converting to integer token units so accumulated float drift never
// reaches the ledger.
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ToTokenUnits converts a currency amount to the ledger's integer unit
// representation, e.g. 17.99 with 6 token decimals -> 17990000.
func ToTokenUnits(amount decimal.Decimal, tokenDecimals int32) *big.Int {
	return NormalizeAmount(amount).Shift(tokenDecimals).BigInt()
}

func FromTokenUnits(units *big.Int, tokenDecimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(units, -tokenDecimals)
}
