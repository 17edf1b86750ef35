package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestNewParsesTaskContractABI(t *testing.T) {
	c, err := New(nil, common.HexToAddress("0xabc"), nil, common.HexToAddress("0xdef"))
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xdef"), c.Self())
}

func TestNewWaiterRebuildsFromPersistedHash(t *testing.T) {
	c, err := New(nil, common.HexToAddress("0xabc"), nil, common.HexToAddress("0xdef"))
	require.NoError(t, err)

	hash := common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222").Bytes()
	w := c.NewWaiter("cancelTask", hash)
	require.Equal(t, hash, w.Hash())
}
