package polygon

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOwner = "0x00000000000000000000000000000000000000aa"
	testUSDC  = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

type fakeChain struct {
	chainID  int64
	block    uint64
	native   *big.Int
	usdc     *big.Int
	decimals int64
	callErr  error
	calls    []ethereum.CallMsg
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return f.block, nil }

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.callErr != nil {
		return nil, f.callErr
	}
	switch {
	case len(msg.Data) == 4:
		return common.LeftPadBytes(big.NewInt(f.decimals).Bytes(), 32), nil
	default:
		return common.LeftPadBytes(f.usdc.Bytes(), 32), nil
	}
}

func TestSnapshot(t *testing.T) {
	chain := &fakeChain{
		chainID:  137,
		block:    65_000_000,
		native:   new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18)),
		usdc:     big.NewInt(1_234_560_000),
		decimals: 6,
	}
	w := newWallet(chain, Config{Address: testOwner, USDCContract: testUSDC, ChainID: 137})

	snap, err := w.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(137), snap.ChainID)
	assert.Equal(t, uint64(65_000_000), snap.BlockNumber)
	assert.InDelta(t, 3.0, snap.Native, 1e-9)
	assert.InDelta(t, 1234.56, snap.USDC, 1e-9)
	assert.Equal(t, uint8(6), snap.Decimals)
	assert.Equal(t, "1234560000", snap.USDCRaw)

	require.Len(t, chain.calls, 2)
	assert.Equal(t, common.HexToAddress(testUSDC), *chain.calls[1].To)
	assert.Equal(t, balanceOfCalldata(common.HexToAddress(testOwner)), chain.calls[1].Data)
}

func TestSnapshotChainMismatch(t *testing.T) {
	chain := &fakeChain{chainID: 1, native: big.NewInt(0), usdc: big.NewInt(0), decimals: 6}
	w := newWallet(chain, Config{Address: testOwner, USDCContract: testUSDC, ChainID: 137})

	_, err := w.Snapshot(context.Background())
	assert.ErrorContains(t, err, "expected 137")
}

func TestSnapshotCallError(t *testing.T) {
	chain := &fakeChain{chainID: 137, native: big.NewInt(0), callErr: errors.New("execution reverted")}
	w := newWallet(chain, Config{Address: testOwner, USDCContract: testUSDC})

	_, err := w.Snapshot(context.Background())
	assert.ErrorContains(t, err, "execution reverted")
}

func TestBalanceOfCalldata(t *testing.T) {
	data := balanceOfCalldata(common.HexToAddress(testOwner))
	require.Len(t, data, 36)
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, data[:4])
	assert.Equal(t, byte(0xaa), data[35])
}

func TestDecodeUint256(t *testing.T) {
	_, err := decodeUint256([]byte{1, 2})
	assert.Error(t, err)

	v, err := decodeUint256(common.LeftPadBytes([]byte{0x01, 0x00}, 32))
	require.NoError(t, err)
	assert.Equal(t, int64(256), v.Int64())
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x2791…4174", ShortAddress(testUSDC))
	assert.Equal(t, "0xabc", ShortAddress("0xabc"))
}
