package swap

import (
	"fmt"
	"math/big"

	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
)

const bpsDenominator = 10_000

// FeeCeiling derives the hard fee ceiling from a quoted fee inflated by a
// safety buffer in basis points. The ceiling is always derived from the
// quote, never from whatever fee ends up being requested.
func FeeCeiling(quoted *big.Int, bufferBps int64) (FeeBound, error) {
	if quoted == nil || quoted.Sign() < 0 {
		return FeeBound{}, clierr.New(clierr.CodeUsage, "invalid amount: quoted fee must be non-negative")
	}
	if bufferBps < 0 {
		return FeeBound{}, clierr.New(clierr.CodeUsage, "fee buffer must be non-negative")
	}
	ceiling := new(big.Int).Mul(quoted, big.NewInt(bpsDenominator+bufferBps))
	ceiling.Div(ceiling, big.NewInt(bpsDenominator))
	return FeeBound{MaximumFee: ceiling}, nil
}

// BoundedFee returns the requested fee when it does not exceed the ceiling;
// otherwise the operation must abort with no transaction submitted.
func BoundedFee(requested *big.Int, ceiling FeeBound) (*big.Int, error) {
	if requested == nil || requested.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "invalid amount: requested fee must be non-negative")
	}
	if ceiling.MaximumFee == nil {
		return nil, clierr.New(clierr.CodeFeeBound, "fee ceiling is required")
	}
	if requested.Cmp(ceiling.MaximumFee) > 0 {
		return nil, clierr.New(clierr.CodeFeeBound,
			fmt.Sprintf("fee exceeds bound: requested %s > ceiling %s", requested, ceiling.MaximumFee))
	}
	return new(big.Int).Set(requested), nil
}
