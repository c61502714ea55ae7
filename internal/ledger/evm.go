package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"stablepay/internal/config"
	"stablepay/internal/domain"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"amount","type":"uint256"}],"name":"Approval","type":"event"}
]`

// transferFromGasLimit is generous for a plain ERC-20 transferFrom.
const transferFromGasLimit = 100000

// EVMGateway talks to an ERC-20 stablecoin contract over JSON-RPC, signing
// settlement transactions with the merchant key.
type EVMGateway struct {
	client   *ethclient.Client
	erc20    abi.ABI
	token    common.Address
	key      *ecdsa.PrivateKey
	merchant common.Address
	chainID  *big.Int
	decimals int32
	timeout  time.Duration
	log      *zap.Logger
}

func NewEVMGateway(ctx context.Context, cfg config.Config, log *zap.Logger) (*EVMGateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.MerchantPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse merchant key: %w", err)
	}

	chainID, err := client.NetworkID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	g := &EVMGateway{
		client:   client,
		erc20:    parsed,
		token:    common.HexToAddress(cfg.TokenAddress),
		key:      key,
		merchant: crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		decimals: cfg.TokenDecimals,
		timeout:  cfg.LedgerTimeout,
		log:      log,
	}

	// The configured decimal count is a fallback; the contract knows best.
	if d, err := g.tokenDecimals(ctx); err != nil {
		log.Warn("could not read token decimals, using configured value",
			zap.Int32("decimals", g.decimals), zap.Error(err))
	} else {
		g.decimals = d
	}

	log.Info("ledger gateway initialized",
		zap.String("merchant", g.merchant.Hex()),
		zap.String("token", g.token.Hex()),
		zap.Int32("decimals", g.decimals))
	return g, nil
}

func (g *EVMGateway) Merchant() string { return g.merchant.Hex() }

func (g *EVMGateway) tokenDecimals(ctx context.Context) (int32, error) {
	out, err := g.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	var d uint8
	if err := g.erc20.UnpackIntoInterface(&d, "decimals", out); err != nil {
		return 0, err
	}
	return int32(d), nil
}

// call performs a read-only contract call bounded by the gateway timeout.
func (g *EVMGateway) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := g.erc20.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &g.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrGatewayUnavailable, method, err)
	}
	return out, nil
}

func (g *EVMGateway) Allowance(ctx context.Context, owner string) (decimal.Decimal, error) {
	out, err := g.call(ctx, "allowance", common.HexToAddress(owner), g.merchant)
	if err != nil {
		return decimal.Zero, err
	}
	var raw *big.Int
	if err := g.erc20.UnpackIntoInterface(&raw, "allowance", out); err != nil {
		return decimal.Zero, fmt.Errorf("unpack allowance: %w", err)
	}
	return domain.FromTokenUnits(raw, g.decimals), nil
}

func (g *EVMGateway) VerifyApproval(ctx context.Context, txHash string) (*Approval, error) {
	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	receipt, err := g.client.TransactionReceipt(rctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("%w: transaction not found", domain.ErrVerificationFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read receipt: %v", domain.ErrGatewayUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction did not succeed", domain.ErrVerificationFailed)
	}

	approvalSig := g.erc20.Events["Approval"].ID
	for _, lg := range receipt.Logs {
		if lg.Address != g.token || len(lg.Topics) != 3 || lg.Topics[0] != approvalSig {
			continue
		}
		spender := common.BytesToAddress(lg.Topics[2].Bytes())
		if spender != g.merchant {
			continue
		}
		owner := common.BytesToAddress(lg.Topics[1].Bytes())
		amount := new(big.Int).SetBytes(lg.Data)
		return &Approval{
			Owner:  owner.Hex(),
			Amount: domain.FromTokenUnits(amount, g.decimals),
		}, nil
	}

	return nil, fmt.Errorf("%w: no approval to merchant found in transaction", domain.ErrVerificationFailed)
}

func (g *EVMGateway) TransferFrom(ctx context.Context, owner string, amount decimal.Decimal) (*Settlement, error) {
	normalized := domain.NormalizeAmount(amount)
	units := domain.ToTokenUnits(normalized, g.decimals)

	data, err := g.erc20.Pack("transferFrom", common.HexToAddress(owner), g.merchant, units)
	if err != nil {
		return nil, fmt.Errorf("pack transferFrom: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	nonce, err := g.client.PendingNonceAt(ctx, g.merchant)
	if err != nil {
		return nil, fmt.Errorf("%w: read nonce: %v", domain.ErrGatewayUnavailable, err)
	}
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest gas price: %v", domain.ErrGatewayUnavailable, err)
	}

	tx := types.NewTransaction(nonce, g.token, big.NewInt(0), transferFromGasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("sign transferFrom: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: send transferFrom: %v", domain.ErrGatewayUnavailable, err)
	}

	g.log.Debug("transferFrom submitted",
		zap.String("tx", signedTx.Hash().Hex()),
		zap.String("owner", owner),
		zap.String("amount", normalized.String()))

	receipt, err := bind.WaitMined(ctx, g.client, signedTx)
	if err != nil {
		// The transfer may or may not have landed; the caller retries and
		// the idempotent status check sorts it out.
		return nil, fmt.Errorf("%w: wait for settlement: %v", domain.ErrGatewayUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s reverted", domain.ErrSettlementFailed, signedTx.Hash().Hex())
	}

	return &Settlement{TxHash: signedTx.Hash().Hex(), Amount: normalized}, nil
}

func (g *EVMGateway) MerchantBalances(ctx context.Context) (*Balances, error) {
	out, err := g.call(ctx, "balanceOf", g.merchant)
	if err != nil {
		return nil, err
	}
	var raw *big.Int
	if err := g.erc20.UnpackIntoInterface(&raw, "balanceOf", out); err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}

	bctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	native, err := g.client.BalanceAt(bctx, g.merchant, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: read native balance: %v", domain.ErrGatewayUnavailable, err)
	}

	return &Balances{
		Address: g.merchant.Hex(),
		Token:   domain.FromTokenUnits(raw, g.decimals),
		Native:  domain.FromTokenUnits(native, 18),
	}, nil
}
