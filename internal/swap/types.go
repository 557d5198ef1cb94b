package swap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
)

// PermitParameters is a signed EIP-2612 authorization. Single use: the
// consumer must not resubmit it after the deadline or after the owner's nonce
// advances.
type PermitParameters struct {
	Owner    common.Address
	Value    *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

// SwapParameters carries the caller's slippage floor and the swap deadline,
// which is independent from (and typically earlier than) the permit deadline.
type SwapParameters struct {
	MinimumOut *big.Int
	Deadline   *big.Int
}

// FeeBound is the hard ceiling a relay may deduct in the settlement asset.
type FeeBound struct {
	MaximumFee *big.Int
}

// Hop is one (tokenIn, feeTier, tokenOut) step of a router path.
type Hop struct {
	TokenIn  common.Address
	FeeTier  uint32
	TokenOut common.Address
}

// RouterPath is an ordered hop sequence packed as
// address || uint24 || address || uint24 || ... || address.
type RouterPath struct {
	tokens []common.Address
	fees   []uint32
}

const maxFeeTier = 1<<24 - 1

// NewRouterPath validates that hops chain (each hop's input is the previous
// hop's output) and that every fee tier fits uint24.
func NewRouterPath(hops []Hop) (RouterPath, error) {
	if len(hops) == 0 {
		return RouterPath{}, clierr.New(clierr.CodeUsage, "router path requires at least one hop")
	}
	tokens := make([]common.Address, 0, len(hops)+1)
	fees := make([]uint32, 0, len(hops))
	for i, hop := range hops {
		if hop.FeeTier == 0 || hop.FeeTier > maxFeeTier {
			return RouterPath{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("fee tier must be a non-zero uint24, got %d", hop.FeeTier))
		}
		if i == 0 {
			tokens = append(tokens, hop.TokenIn)
		} else if tokens[len(tokens)-1] != hop.TokenIn {
			return RouterPath{}, clierr.New(clierr.CodeUsage, "router path hops do not chain")
		}
		tokens = append(tokens, hop.TokenOut)
		fees = append(fees, hop.FeeTier)
	}
	return RouterPath{tokens: tokens, fees: fees}, nil
}

// Hops reconstructs the hop sequence.
func (p RouterPath) Hops() []Hop {
	hops := make([]Hop, 0, len(p.fees))
	for i, fee := range p.fees {
		hops = append(hops, Hop{TokenIn: p.tokens[i], FeeTier: fee, TokenOut: p.tokens[i+1]})
	}
	return hops
}

func (p RouterPath) TokenIn() common.Address  { return p.tokens[0] }
func (p RouterPath) TokenOut() common.Address { return p.tokens[len(p.tokens)-1] }

// Pack produces the packed byte form consumed by the router:
// 20 bytes address, 3 bytes fee, repeated, terminating on the output token.
func (p RouterPath) Pack() []byte {
	out := make([]byte, 0, len(p.tokens)*20+len(p.fees)*3)
	for i, token := range p.tokens {
		out = append(out, token.Bytes()...)
		if i < len(p.fees) {
			fee := p.fees[i]
			out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return out
}

// UnpackRouterPath reverses Pack.
func UnpackRouterPath(data []byte) (RouterPath, error) {
	if len(data) < 43 || (len(data)-20)%23 != 0 {
		return RouterPath{}, clierr.New(clierr.CodeInternal, fmt.Sprintf("packed path has invalid length %d", len(data)))
	}
	var path RouterPath
	path.tokens = append(path.tokens, common.BytesToAddress(data[:20]))
	for offset := 20; offset < len(data); offset += 23 {
		fee := uint32(data[offset])<<16 | uint32(data[offset+1])<<8 | uint32(data[offset+2])
		path.fees = append(path.fees, fee)
		path.tokens = append(path.tokens, common.BytesToAddress(data[offset+3:offset+23]))
	}
	return path, nil
}
