package onchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMicroToUSDC(t *testing.T) {
	assert.Equal(t, 0.0, microToUSDC(big.NewInt(0)))
	assert.Equal(t, 12.5, microToUSDC(big.NewInt(12_500_000)))
	assert.InDelta(t, 0.000001, microToUSDC(big.NewInt(1)), 1e-12)
}

func TestNewWallet_RejectsBadKey(t *testing.T) {
	_, err := NewWallet("http://127.0.0.1:1", "not-a-key", "")
	assert.Error(t, err)
}
