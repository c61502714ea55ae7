// Package ledger abstracts the on-chain operations the payment engine needs:
// reading allowances, verifying approval transactions and collecting funds
// via transferFrom.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Approval is the spend authorization extracted from a verified transaction.
type Approval struct {
	Owner  string
	Amount decimal.Decimal
}

// Settlement identifies a confirmed fund-moving transaction.
type Settlement struct {
	TxHash string
	Amount decimal.Decimal
}

type Balances struct {
	Address string
	Token   decimal.Decimal
	Native  decimal.Decimal
}

// Gateway is the merchant's view of the ledger. Every call may block on
// network and confirmation latency; implementations bound them with the
// caller's context plus their own timeout. Failures are classified against
// the domain error taxonomy: domain.ErrGatewayUnavailable for transport
// trouble, domain.ErrVerificationFailed / domain.ErrSettlementFailed for
// transactions that resolved but did not succeed.
type Gateway interface {
	// Allowance returns the amount the owner has authorized the merchant
	// to spend, in currency units.
	Allowance(ctx context.Context, owner string) (decimal.Decimal, error)
	// VerifyApproval resolves a transaction reference and extracts the
	// approval event granting spend rights to the merchant.
	VerifyApproval(ctx context.Context, txHash string) (*Approval, error)
	// TransferFrom moves the amount from the owner to the merchant and
	// waits for a confirmed receipt. It never reports success without one.
	TransferFrom(ctx context.Context, owner string, amount decimal.Decimal) (*Settlement, error)
	// MerchantBalances reads the merchant's token and native balances.
	MerchantBalances(ctx context.Context) (*Balances, error)
}
