package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"stablepay/internal/domain"
)

// MemoryGateway is an in-process ledger used by tests and the simulator. It
// keeps per-owner allowances and a merchant balance, and can be told to fail
// the next transfers to exercise the retry path.
type MemoryGateway struct {
	mu              sync.Mutex
	allowances      map[string]decimal.Decimal
	approvals       map[string]Approval
	merchantBalance decimal.Decimal
	transferCalls   int
	failTransfers   int
	failOwners      map[string]int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		allowances: make(map[string]decimal.Decimal),
		approvals:  make(map[string]Approval),
		failOwners: make(map[string]int),
	}
}

// Approve records an on-ledger approval and returns its transaction hash,
// standing in for the customer's wallet interaction.
func (g *MemoryGateway) Approve(owner string, amount decimal.Decimal) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	txHash := randomTxHash()
	g.allowances[owner] = amount
	g.approvals[txHash] = Approval{Owner: owner, Amount: amount}
	return txHash
}

// FailTransfers makes the next n TransferFrom calls fail with a retryable
// settlement error.
func (g *MemoryGateway) FailTransfers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failTransfers = n
}

// FailTransfersFor fails the next n transfers for one owner only.
func (g *MemoryGateway) FailTransfersFor(owner string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOwners[owner] = n
}

// TransferCalls reports how many TransferFrom calls reached the ledger.
func (g *MemoryGateway) TransferCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transferCalls
}

func (g *MemoryGateway) Allowance(_ context.Context, owner string) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowances[owner], nil
}

func (g *MemoryGateway) VerifyApproval(_ context.Context, txHash string) (*Approval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	approval, ok := g.approvals[txHash]
	if !ok {
		return nil, fmt.Errorf("%w: transaction not found", domain.ErrVerificationFailed)
	}
	return &approval, nil
}

func (g *MemoryGateway) TransferFrom(_ context.Context, owner string, amount decimal.Decimal) (*Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.transferCalls++

	if g.failTransfers > 0 {
		g.failTransfers--
		return nil, fmt.Errorf("%w: simulated ledger congestion", domain.ErrSettlementFailed)
	}
	if n := g.failOwners[owner]; n > 0 {
		g.failOwners[owner] = n - 1
		return nil, fmt.Errorf("%w: simulated ledger congestion", domain.ErrSettlementFailed)
	}

	normalized := domain.NormalizeAmount(amount)
	allowance := g.allowances[owner]
	if allowance.LessThan(normalized) {
		return nil, fmt.Errorf("%w: have %s, need %s",
			domain.ErrInsufficientAllowance, allowance, normalized)
	}

	g.allowances[owner] = allowance.Sub(normalized)
	g.merchantBalance = g.merchantBalance.Add(normalized)

	return &Settlement{TxHash: randomTxHash(), Amount: normalized}, nil
}

func (g *MemoryGateway) MerchantBalances(_ context.Context) (*Balances, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return &Balances{Address: "0xmerchant", Token: g.merchantBalance}, nil
}

func randomTxHash() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return "0x" + hex.EncodeToString(b[:])
}
