package swap

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kbizikav/gasless-gas-station/internal/amount"
	"github.com/kbizikav/gasless-gas-station/internal/chain"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
)

// State names one phase of a swap attempt. Transitions are strictly
// sequential; only the approval states are optional and each is entered at
// most once. Any failure moves directly to StateFailed with the originating
// error.
type State string

const (
	StateInit              State = "init"
	StateResolvingParams   State = "resolving_params"
	StateGatingAllowances  State = "gating_allowances"
	StateApprovingToken    State = "approving_token"
	StateApprovingDelegate State = "approving_delegate"
	StateBuildingPermit    State = "building_permit"
	StateEncoding          State = "encoding"
	StateBoundingFee       State = "bounding_fee"
	StateSubmitting        State = "submitting"
	StatePolling           State = "polling"
	StateConfirmed         State = "confirmed"
	StateFailed            State = "failed"
	StateExpired           State = "expired"
)

// ChainAccess is the read surface the orchestrator consumes. Every method is
// one network read returning an immutable snapshot.
type ChainAccess interface {
	ChainID(ctx context.Context) (*big.Int, error)
	TokenInfo(ctx context.Context, token common.Address) (chain.TokenInfo, error)
	PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	DelegateAllowance(ctx context.Context, owner, token, spender common.Address) (chain.AllowanceState, error)
}

// TxSubmitter broadcasts one prepared call and exposes a receipt query for
// the poller. Retries after ambiguous failures are the orchestrator's call,
// and it never makes one.
type TxSubmitter interface {
	Submit(ctx context.Context, call execution.Call) (execution.Handle, error)
	ReceiptStatus(handle execution.Handle) execution.StatusFunc
}

// RelayAccess is the gas-sponsored submission surface.
type RelayAccess interface {
	EstimateFee(ctx context.Context, chainID int64, gasLimit uint64, highPriority bool) (*big.Int, error)
	CallWithSyncFee(ctx context.Context, chainID int64, target common.Address, data []byte) (execution.Handle, error)
	StatusQuery(handle execution.Handle) execution.StatusFunc
}

// Outcome reports where a swap attempt ended. Approvals lists the allowance
// layers that were raised on the way. On StateExpired the handle and last
// status allow manual reconciliation; the underlying task may still land.
type Outcome struct {
	State     State
	Handle    execution.Handle
	Status    execution.Status
	Approvals []ApprovalLayer
	MaxFee    *big.Int
}

// Orchestrator drives one swap attempt through its state machine. A single
// logical flow: every network operation completes before the next is issued,
// because each step's inputs depend on the previous step's observed state.
// Callers must serialize attempts per owner; two concurrent attempts would
// observe the same stale allowances and double-approve.
type Orchestrator struct {
	chain   ChainAccess
	tx      TxSubmitter
	relay   RelayAccess
	poll    execution.PollOptions
	now     func() time.Time
	onState func(State)
}

type OrchestratorOption func(*Orchestrator)

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithStateObserver registers a callback invoked on every state transition.
func WithStateObserver(fn func(State)) OrchestratorOption {
	return func(o *Orchestrator) { o.onState = fn }
}

func NewOrchestrator(chainAccess ChainAccess, tx TxSubmitter, relay RelayAccess, poll execution.PollOptions, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		chain: chainAccess,
		tx:    tx,
		relay: relay,
		poll:  poll,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) enter(state State) State {
	if o.onState != nil {
		o.onState(state)
	}
	return state
}

// RouterSwapRequest describes one direct exact-input swap through the
// universal router with Permit2 delegation.
type RouterSwapRequest struct {
	Owner          common.Address
	Recipient      common.Address
	Router         common.Address
	Hops           []Hop
	AmountIn       amount.TokenAmount
	MinimumOut     *big.Int
	DeadlineOffset time.Duration
}

// RouterSwap runs the direct path: gate both allowance layers (token first,
// then delegation, raising each at most once), encode the command sequence
// and drive the broadcast transaction to a terminal state.
func (o *Orchestrator) RouterSwap(ctx context.Context, req RouterSwapRequest) (Outcome, error) {
	outcome := Outcome{State: o.enter(StateInit)}

	// Resolve and validate all quantities before any network write.
	outcome.State = o.enter(StateResolvingParams)
	if req.AmountIn.Value == nil || req.AmountIn.Value.Sign() <= 0 {
		return fail(&outcome), clierr.New(clierr.CodeUsage, "invalid amount: swap input must be positive")
	}
	// The delegation layer holds amounts in a uint160 slot.
	if err := amount.CheckWidth(req.AmountIn, amount.MaxUint160, "uint160 allowance"); err != nil {
		return fail(&outcome), err
	}
	path, err := NewRouterPath(req.Hops)
	if err != nil {
		return fail(&outcome), err
	}
	if path.TokenIn() == (common.Address{}) {
		return fail(&outcome), clierr.New(clierr.CodeUsage, "input token address is required")
	}
	deadline := amount.Deadline(o.now(), req.DeadlineOffset)
	if err := amount.CheckDeadline(deadline, o.now()); err != nil {
		return fail(&outcome), err
	}
	token := path.TokenIn()

	outcome.State = o.enter(StateGatingAllowances)
	if err := o.gateAllowances(ctx, &outcome, req.Owner, token, req.Router, req.AmountIn.Value); err != nil {
		return fail(&outcome), err
	}

	outcome.State = o.enter(StateEncoding)
	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = req.Owner
	}
	command, err := EncodeV3SwapExactIn(ExactInParams{
		Recipient:   recipient,
		AmountIn:    req.AmountIn.Value,
		MinimumOut:  req.MinimumOut,
		Path:        path,
		PayerIsUser: true,
	})
	if err != nil {
		return fail(&outcome), err
	}
	data, err := EncodeExecute([]RouterCommand{command}, deadline)
	if err != nil {
		return fail(&outcome), err
	}

	// A deadline that lapsed while approvals confirmed terminates the
	// attempt; it is never silently rebuilt.
	if err := amount.CheckDeadline(deadline, o.now()); err != nil {
		return fail(&outcome), err
	}

	outcome.State = o.enter(StateSubmitting)
	handle, err := o.tx.Submit(ctx, execution.Call{To: req.Router, Data: data, Value: big.NewInt(0)})
	if err != nil {
		return fail(&outcome), err
	}
	outcome.Handle = handle

	outcome.State = o.enter(StatePolling)
	status, err := execution.AwaitTerminal(ctx, o.tx.ReceiptStatus(handle), o.poll)
	outcome.Status = status
	if err != nil {
		return fail(&outcome), err
	}
	return o.finish(&outcome)
}

// gateAllowances checks the two allowance layers in order, submitting at most
// one approval per layer and re-reading on-chain state after each confirms.
func (o *Orchestrator) gateAllowances(ctx context.Context, outcome *Outcome, owner, token, router common.Address, required *big.Int) error {
	current, err := o.chain.Allowance(ctx, token, owner, registry.Permit2Address)
	if err != nil {
		return err
	}
	instruction, err := EnsureTokenAllowance(current, required, token, registry.Permit2Address)
	if err != nil {
		return err
	}
	if instruction != nil {
		outcome.State = o.enter(StateApprovingToken)
		if err := o.runApproval(ctx, *instruction); err != nil {
			return err
		}
		outcome.Approvals = append(outcome.Approvals, LayerToken)
		refreshed, err := o.chain.Allowance(ctx, token, owner, registry.Permit2Address)
		if err != nil {
			return err
		}
		if refreshed.Cmp(required) < 0 {
			return clierr.New(clierr.CodeUnavailable, "token allowance still insufficient after approval confirmed")
		}
	}

	state, err := o.chain.DelegateAllowance(ctx, owner, token, router)
	if err != nil {
		return err
	}
	instruction, err = EnsureDelegateAllowance(state, required, token, router, o.now())
	if err != nil {
		return err
	}
	if instruction != nil {
		outcome.State = o.enter(StateApprovingDelegate)
		if err := o.runApproval(ctx, *instruction); err != nil {
			return err
		}
		outcome.Approvals = append(outcome.Approvals, LayerDelegate)
		refreshed, err := o.chain.DelegateAllowance(ctx, owner, token, router)
		if err != nil {
			return err
		}
		if refreshed.Amount == nil || refreshed.Amount.Cmp(required) < 0 {
			return clierr.New(clierr.CodeUnavailable, "delegate allowance still insufficient after approval confirmed")
		}
	}
	return nil
}

func (o *Orchestrator) runApproval(ctx context.Context, instruction ApprovalInstruction) error {
	handle, err := o.tx.Submit(ctx, instruction.Call)
	if err != nil {
		return err
	}
	status, err := execution.AwaitTerminal(ctx, o.tx.ReceiptStatus(handle), o.poll)
	if err != nil {
		return err
	}
	switch status.State {
	case execution.StateConfirmed:
		return nil
	case execution.StateFailed:
		return clierr.New(clierr.CodeReverted, fmt.Sprintf("%s approval failed: %s", instruction.Layer, status.Reason))
	default:
		return clierr.New(clierr.CodeTimeout, fmt.Sprintf("%s approval still pending after polling budget; re-check before retrying", instruction.Layer))
	}
}

// RelaySwapRequest describes one gas-sponsored permit swap into native
// currency through the permit-swap contract.
type RelaySwapRequest struct {
	ChainID        int64
	Owner          common.Address
	Target         common.Address
	Token          common.Address
	Amount         amount.TokenAmount
	MinNativeOut   *big.Int
	PermitDeadline time.Duration
	SwapDeadline   time.Duration
	GasLimit       uint64
	FeeBufferBps   int64
	HighPriority   bool
	// UserMaxFee optionally caps the derived ceiling; when the ceiling
	// exceeds it the attempt aborts before submission.
	UserMaxFee *big.Int
	Sign       SignTypedDataFunc
}

// RelaySwap runs the gas-sponsored path: build and sign the permit, encode
// the atomic permit-swap call, bound the relay fee and drive the relay task
// to a terminal state.
func (o *Orchestrator) RelaySwap(ctx context.Context, req RelaySwapRequest) (Outcome, error) {
	outcome := Outcome{State: o.enter(StateInit)}

	outcome.State = o.enter(StateResolvingParams)
	if req.Amount.Value == nil || req.Amount.Value.Sign() <= 0 {
		return fail(&outcome), clierr.New(clierr.CodeUsage, "invalid amount: permit value must be positive")
	}
	if err := amount.CheckWidth(req.Amount, amount.MaxUint256, "uint256 permit value"); err != nil {
		return fail(&outcome), err
	}
	if req.Sign == nil {
		return fail(&outcome), clierr.New(clierr.CodeSigner, "missing signing capability")
	}
	now := o.now()
	permitDeadline := amount.Deadline(now, req.PermitDeadline)
	swapDeadline := amount.Deadline(now, req.SwapDeadline)
	if err := amount.CheckDeadline(permitDeadline, now); err != nil {
		return fail(&outcome), err
	}
	if err := amount.CheckDeadline(swapDeadline, now); err != nil {
		return fail(&outcome), err
	}

	// The permit domain binds the chain id; signing against a mismatched
	// endpoint would produce a permit no contract accepts.
	chainID, err := o.chain.ChainID(ctx)
	if err != nil {
		return fail(&outcome), err
	}
	if chainID == nil || chainID.Int64() != req.ChainID {
		return fail(&outcome), clierr.New(clierr.CodeUsage,
			fmt.Sprintf("configured chain id %d does not match endpoint chain id %s", req.ChainID, chainID))
	}

	info, err := o.chain.TokenInfo(ctx, req.Token)
	if err != nil {
		return fail(&outcome), err
	}
	nonce, err := o.chain.PermitNonce(ctx, req.Token, req.Owner)
	if err != nil {
		return fail(&outcome), err
	}

	outcome.State = o.enter(StateBuildingPermit)
	permit, err := BuildPermit(PermitInput{
		Owner:     req.Owner,
		Spender:   req.Target,
		Value:     req.Amount.Value,
		Nonce:     nonce,
		Token:     info,
		TokenAddr: req.Token,
		ChainID:   big.NewInt(req.ChainID),
		Deadline:  permitDeadline,
	}, o.now(), req.Sign)
	if err != nil {
		return fail(&outcome), err
	}

	outcome.State = o.enter(StateEncoding)
	swapParams := SwapParameters{MinimumOut: req.MinNativeOut, Deadline: swapDeadline}

	outcome.State = o.enter(StateBoundingFee)
	quoted, err := o.relay.EstimateFee(ctx, req.ChainID, req.GasLimit, req.HighPriority)
	if err != nil {
		return fail(&outcome), err
	}
	ceiling, err := FeeCeiling(quoted, req.FeeBufferBps)
	if err != nil {
		return fail(&outcome), err
	}
	maxFee := ceiling.MaximumFee
	if req.UserMaxFee != nil {
		if maxFee, err = BoundedFee(ceiling.MaximumFee, FeeBound{MaximumFee: req.UserMaxFee}); err != nil {
			return fail(&outcome), err
		}
	}
	outcome.MaxFee = maxFee

	data, err := EncodePermitSwap(permit, swapParams, FeeBound{MaximumFee: maxFee})
	if err != nil {
		return fail(&outcome), err
	}

	// The permit is single use; submitting past its deadline is forbidden.
	if err := amount.CheckDeadline(permitDeadline, o.now()); err != nil {
		return fail(&outcome), err
	}

	outcome.State = o.enter(StateSubmitting)
	handle, err := o.relay.CallWithSyncFee(ctx, req.ChainID, req.Target, data)
	if err != nil {
		return fail(&outcome), err
	}
	outcome.Handle = handle

	outcome.State = o.enter(StatePolling)
	status, err := execution.AwaitTerminal(ctx, o.relay.StatusQuery(handle), o.poll)
	outcome.Status = status
	if err != nil {
		return fail(&outcome), err
	}
	return o.finish(&outcome)
}

func (o *Orchestrator) finish(outcome *Outcome) (Outcome, error) {
	switch outcome.Status.State {
	case execution.StateConfirmed:
		outcome.State = o.enter(StateConfirmed)
		return *outcome, nil
	case execution.StateFailed:
		outcome.State = o.enter(StateFailed)
		return *outcome, clierr.New(clierr.CodeReverted, outcome.Status.Reason)
	default:
		// Polling budget exhausted: ambiguous, not failed. The handle in
		// the outcome lets the caller re-check independently.
		outcome.State = o.enter(StateExpired)
		return *outcome, nil
	}
}

func fail(outcome *Outcome) Outcome {
	outcome.State = StateFailed
	return *outcome
}
