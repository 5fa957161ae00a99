package domain

import "time"

// WalletSnapshot is a read-only view of an on-chain wallet used to size
// simulated capital.
type WalletSnapshot struct {
	Address     string    `json:"address"`
	ChainID     int64     `json:"chain_id"`
	BlockNumber uint64    `json:"block_number"`
	NativeWei   string    `json:"native_wei"`
	Native      float64   `json:"native"`
	USDC        float64   `json:"usdc"`
	USDCRaw     string    `json:"usdc_raw"`
	Decimals    uint8     `json:"usdc_decimals"`
	FetchedAt   time.Time `json:"fetched_at"`
}
