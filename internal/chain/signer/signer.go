package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is the narrow signing capability the swap pipeline consumes. Both
// operations may suspend (hardware wallets, remote signers) and return an
// error when the holder rejects.
type Signer interface {
	Address() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
	// SignTypedData signs an EIP-712 payload and returns the 65-byte
	// signature (r || s || v) with v normalized to 27/28.
	SignTypedData(typedData apitypes.TypedData) ([]byte, error)
}
