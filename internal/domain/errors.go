package domain

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")

	// ErrInvalidOrder rejects malformed creation requests: empty item
	// lists, non-positive quantities.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidState means the operation does not apply to the order's
	// current status (e.g. collecting a pending order).
	ErrInvalidState = errors.New("order is not in a valid state for this operation")

	// Approval failures. Terminal for the attempt; the caller may retry
	// with a different transaction reference.
	ErrVerificationFailed = errors.New("approval verification failed")
	ErrAmountMismatch     = errors.New("approved amount does not match order amount")

	// Collection failures. Retryable; the reconciliation worker picks the
	// order up on its next sweep.
	ErrInsufficientAllowance = errors.New("insufficient allowance to collect payment")
	ErrSettlementFailed      = errors.New("settlement transaction failed")

	// ErrMissingApproval flags an approved order with no customer wallet.
	// That should be impossible; it needs an operator, not a retry.
	ErrMissingApproval = errors.New("approved order has no customer wallet")

	// ErrGatewayUnavailable covers network errors and timeouts talking to
	// the ledger. It says nothing about whether the underlying transfer
	// happened, so it is never treated as success.
	ErrGatewayUnavailable = errors.New("ledger gateway unavailable")
)

// Retryable reports whether the reconciliation worker should try the order
// again on a later sweep.
func Retryable(err error) bool {
	return errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrSettlementFailed) ||
		errors.Is(err, ErrGatewayUnavailable)
}
