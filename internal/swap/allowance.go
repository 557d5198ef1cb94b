package swap

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kbizikav/gasless-gas-station/internal/amount"
	"github.com/kbizikav/gasless-gas-station/internal/chain"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
)

// ApprovalLayer names which of the two independent allowance layers an
// instruction raises. The token layer must be sufficient before the delegate
// layer is checked, because the delegation registry pulls through the token
// contract.
type ApprovalLayer string

const (
	LayerToken    ApprovalLayer = "token"
	LayerDelegate ApprovalLayer = "delegate"
)

// ApprovalInstruction carries the exact call needed to raise one allowance
// layer. The caller submits it and re-reads the allowance before proceeding;
// the gate itself never writes.
type ApprovalInstruction struct {
	Layer ApprovalLayer
	Call  execution.Call
}

var (
	erc20GateABI   = mustGateABI(registry.ERC20PermitABI)
	permit2GateABI = mustGateABI(registry.Permit2ABI)
)

// EnsureTokenAllowance decides whether the classic ERC-20 allowance
// (owner → spender) covers required. Returns nil when no action is needed.
// The emitted approval is unlimited to avoid repeated approvals.
func EnsureTokenAllowance(current *big.Int, required *big.Int, token, spender common.Address) (*ApprovalInstruction, error) {
	if required == nil || required.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, "invalid amount: required allowance must be non-negative")
	}
	if current == nil {
		current = big.NewInt(0)
	}
	if current.Cmp(required) >= 0 {
		return nil, nil
	}
	data, err := erc20GateABI.Pack("approve", spender, amount.MaxUint256)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack token approval calldata", err)
	}
	return &ApprovalInstruction{
		Layer: LayerToken,
		Call:  execution.Call{To: token, Data: data, Value: big.NewInt(0)},
	}, nil
}

// EnsureDelegateAllowance decides whether the time-bound delegation allowance
// (owner, token, spender) covers required and has not expired. The emitted
// approval uses the maximum uint160 amount and the maximum uint48 expiration
// so subsequent swaps skip this layer. Amounts wider than the uint160 slot
// are rejected before any network write.
func EnsureDelegateAllowance(state chain.AllowanceState, required *big.Int, token, spender common.Address, now time.Time) (*ApprovalInstruction, error) {
	if err := amount.CheckWidth(amount.TokenAmount{Value: required}, amount.MaxUint160, "uint160 allowance"); err != nil {
		return nil, err
	}
	current := state.Amount
	if current == nil {
		current = big.NewInt(0)
	}
	// An unset expiration reads as 0, which is in the past: absent
	// delegations are expired, not eternal.
	expired := int64(state.Expiration) < now.Unix()
	if current.Cmp(required) >= 0 && !expired {
		return nil, nil
	}
	data, err := permit2GateABI.Pack("approve", token, spender, amount.MaxUint160, amount.MaxUint48)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack delegate approval calldata", err)
	}
	return &ApprovalInstruction{
		Layer: LayerDelegate,
		Call:  execution.Call{To: registry.Permit2Address, Data: data, Value: big.NewInt(0)},
	}, nil
}

func mustGateABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
