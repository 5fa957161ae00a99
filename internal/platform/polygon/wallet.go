// Package polygon reads wallet balances from a Polygon JSON-RPC endpoint.
package polygon

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/adjust481/PolySniper/internal/domain"
)

const (
	nativeDecimals = 18
	defaultTimeout = 10 * time.Second
)

var (
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	decimalsSelector  = crypto.Keccak256([]byte("decimals()"))[:4]
)

// chainReader is the subset of ethclient.Client the wallet reads through.
type chainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Config selects the RPC endpoint, wallet and token contract.
type Config struct {
	RPCURL       string
	Address      string
	USDCContract string
	// ChainID, when non-zero, must match the endpoint's chain.
	ChainID int64
	Timeout time.Duration
}

// Wallet reads balances of a single address.
type Wallet struct {
	client  chainReader
	closer  func()
	address common.Address
	usdc    common.Address
	chainID int64
	timeout time.Duration
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config) (*Wallet, error) {
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("polygon: invalid wallet address %q", cfg.Address)
	}
	if !common.IsHexAddress(cfg.USDCContract) {
		return nil, fmt.Errorf("polygon: invalid usdc contract %q", cfg.USDCContract)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("polygon: dial %s: %w", cfg.RPCURL, err)
	}
	w := newWallet(client, cfg)
	w.closer = client.Close
	return w, nil
}

func newWallet(client chainReader, cfg Config) *Wallet {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Wallet{
		client:  client,
		address: common.HexToAddress(cfg.Address),
		usdc:    common.HexToAddress(cfg.USDCContract),
		chainID: cfg.ChainID,
		timeout: timeout,
	}
}

// Close releases the RPC connection.
func (w *Wallet) Close() {
	if w.closer != nil {
		w.closer()
	}
}

// Snapshot reads chain id, head block, native balance and USDC balance.
func (w *Wallet) Snapshot(ctx context.Context) (domain.WalletSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	chainID, err := w.client.ChainID(ctx)
	if err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("polygon: chain id: %w", err)
	}
	if w.chainID != 0 && chainID.Int64() != w.chainID {
		return domain.WalletSnapshot{}, fmt.Errorf("polygon: endpoint is chain %d, expected %d", chainID.Int64(), w.chainID)
	}

	block, err := w.client.BlockNumber(ctx)
	if err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("polygon: block number: %w", err)
	}
	head := new(big.Int).SetUint64(block)

	native, err := w.client.BalanceAt(ctx, w.address, head)
	if err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("polygon: native balance: %w", err)
	}

	decimals, err := w.tokenDecimals(ctx, head)
	if err != nil {
		return domain.WalletSnapshot{}, err
	}
	raw, err := w.call(ctx, head, balanceOfCalldata(w.address))
	if err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("polygon: usdc balanceOf: %w", err)
	}
	usdc, err := decodeUint256(raw)
	if err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("polygon: usdc balanceOf: %w", err)
	}

	return domain.WalletSnapshot{
		Address:     w.address.Hex(),
		ChainID:     chainID.Int64(),
		BlockNumber: block,
		NativeWei:   native.String(),
		Native:      scaleAmount(native, nativeDecimals),
		USDC:        scaleAmount(usdc, decimals),
		USDCRaw:     usdc.String(),
		Decimals:    decimals,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// USDCBalance returns the wallet's USDC balance in whole units.
func (w *Wallet) USDCBalance(ctx context.Context) (float64, error) {
	snap, err := w.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.USDC, nil
}

func (w *Wallet) tokenDecimals(ctx context.Context, head *big.Int) (uint8, error) {
	raw, err := w.call(ctx, head, decimalsSelector)
	if err != nil {
		return 0, fmt.Errorf("polygon: usdc decimals: %w", err)
	}
	v, err := decodeUint256(raw)
	if err != nil {
		return 0, fmt.Errorf("polygon: usdc decimals: %w", err)
	}
	if !v.IsUint64() || v.Uint64() > 36 {
		return 0, fmt.Errorf("polygon: usdc decimals: implausible value %s", v)
	}
	return uint8(v.Uint64()), nil
}

func (w *Wallet) call(ctx context.Context, block *big.Int, data []byte) ([]byte, error) {
	to := w.usdc
	return w.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
}

func balanceOfCalldata(owner common.Address) []byte {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	return append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
}

func decodeUint256(raw []byte) (*big.Int, error) {
	if len(raw) < 32 {
		return nil, fmt.Errorf("short return data (%d bytes)", len(raw))
	}
	return new(big.Int).SetBytes(raw[:32]), nil
}

func scaleAmount(v *big.Int, decimals uint8) float64 {
	f, _ := decimal.NewFromBigInt(v, -int32(decimals)).Float64()
	return f
}

// ShortAddress abbreviates an address for log lines.
func ShortAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
