package swap

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/kbizikav/gasless-gas-station/internal/amount"
	"github.com/kbizikav/gasless-gas-station/internal/chain"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
)

// SignTypedDataFunc is the opaque signing capability the permit builder
// invokes. It may suspend (remote or hardware signers) and returns the
// 65-byte signature r || s || v with v in {27, 28}.
type SignTypedDataFunc func(apitypes.TypedData) ([]byte, error)

// PermitInput bundles everything read at construction time. The nonce is the
// value observed on-chain when the input was assembled; if it goes stale
// before submission the consuming contract rejects the permit atomically.
type PermitInput struct {
	Owner     common.Address
	Spender   common.Address
	Value     *big.Int
	Nonce     *big.Int
	Token     chain.TokenInfo
	TokenAddr common.Address
	ChainID   *big.Int
	Deadline  *big.Int
}

// PermitTypedData constructs the EIP-2612 typed-data payload over
// (owner, spender, value, nonce, deadline) with the token's domain.
func PermitTypedData(in PermitInput) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": []apitypes.Type{
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              in.Token.Name,
			Version:           in.Token.Version,
			ChainId:           (*math.HexOrDecimal256)(in.ChainID),
			VerifyingContract: in.TokenAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    in.Owner.Hex(),
			"spender":  in.Spender.Hex(),
			"value":    (*math.HexOrDecimal256)(in.Value),
			"nonce":    (*math.HexOrDecimal256)(in.Nonce),
			"deadline": (*math.HexOrDecimal256)(in.Deadline),
		},
	}
}

// BuildPermit signs the typed-data payload through the supplied capability and
// splits the signature into (v, r, s). The deadline must be strictly in the
// future; the produced value is single use.
func BuildPermit(in PermitInput, now time.Time, sign SignTypedDataFunc) (PermitParameters, error) {
	if in.Value == nil || in.Value.Sign() < 0 {
		return PermitParameters{}, clierr.New(clierr.CodeUsage, "invalid amount: permit value must be non-negative")
	}
	if in.Nonce == nil {
		return PermitParameters{}, clierr.New(clierr.CodeUsage, "permit nonce is required")
	}
	if err := amount.CheckDeadline(in.Deadline, now); err != nil {
		return PermitParameters{}, err
	}

	signature, err := sign(PermitTypedData(in))
	if err != nil {
		return PermitParameters{}, clierr.Wrap(clierr.CodeSigner, "signing failed", err)
	}
	if len(signature) != 65 {
		return PermitParameters{}, clierr.New(clierr.CodeSigner, "signer returned a malformed signature")
	}

	params := PermitParameters{
		Owner:    in.Owner,
		Value:    new(big.Int).Set(in.Value),
		Deadline: new(big.Int).Set(in.Deadline),
		V:        signature[64],
	}
	copy(params.R[:], signature[0:32])
	copy(params.S[:], signature[32:64])
	if params.V < 27 {
		params.V += 27
	}
	return params, nil
}
