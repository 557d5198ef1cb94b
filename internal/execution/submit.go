package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/kbizikav/gasless-gas-station/internal/chain/signer"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
)

// SubmitOptions tune the direct broadcast path.
type SubmitOptions struct {
	GasMultiplier      float64
	GasLimitCeiling    uint64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
}

func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{GasMultiplier: 1.2}
}

// Submitter broadcasts prepared calls as EIP-1559 transactions. It performs
// exactly one network write per Submit; an ambiguous failure (timeout without
// a definite rejection) is surfaced, never retried here, because resubmission
// risks double-spending a permit nonce if the first attempt landed.
type Submitter struct {
	eth    *ethclient.Client
	signer signer.Signer
	opts   SubmitOptions
}

func NewSubmitter(eth *ethclient.Client, txSigner signer.Signer, opts SubmitOptions) *Submitter {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	return &Submitter{eth: eth, signer: txSigner, opts: opts}
}

func (s *Submitter) Submit(ctx context.Context, call Call) (Handle, error) {
	if s.signer == nil {
		return Handle{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	chainID, err := s.eth.ChainID(ctx)
	if err != nil {
		return Handle{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	value := call.Value
	if value == nil {
		value = big.NewInt(0)
	}
	to := call.To
	msg := ethereum.CallMsg{From: s.signer.Address(), To: &to, Value: value, Data: call.Data}

	gasLimit, err := s.eth.EstimateGas(ctx, msg)
	if err != nil {
		return Handle{}, clierr.Wrap(clierr.CodeReverted, "estimate gas (call would revert)", err)
	}
	gasLimit = uint64(float64(gasLimit) * s.opts.GasMultiplier)
	if s.opts.GasLimitCeiling > 0 && gasLimit > s.opts.GasLimitCeiling {
		gasLimit = s.opts.GasLimitCeiling
	}

	tipCap, err := s.resolveTipCap(ctx)
	if err != nil {
		return Handle{}, err
	}
	header, err := s.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return Handle{}, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, s.opts.MaxFeeGwei)
	if err != nil {
		return Handle{}, err
	}

	nonce, err := s.eth.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return Handle{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      call.Data,
	})
	signed, err := s.signer.SignTx(chainID, tx)
	if err != nil {
		return Handle{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return Handle{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return Handle{Kind: KindTransaction, ID: signed.Hash().Hex()}, nil
}

// ReceiptStatus returns a StatusFunc querying the receipt for handle, suitable
// for AwaitTerminal.
func (s *Submitter) ReceiptStatus(handle Handle) StatusFunc {
	return ReceiptStatus(s.eth, handle)
}

func ReceiptStatus(eth *ethclient.Client, handle Handle) StatusFunc {
	return func(ctx context.Context) (Status, error) {
		receipt, err := eth.TransactionReceipt(ctx, common.HexToHash(handle.ID))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return Status{State: StatePending, TxHash: handle.ID}, nil
			}
			return Status{}, err
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			return Status{
				State:       StateConfirmed,
				TxHash:      handle.ID,
				BlockNumber: receipt.BlockNumber,
			}, nil
		}
		return Status{
			State:       StateFailed,
			TxHash:      handle.ID,
			BlockNumber: receipt.BlockNumber,
			Reason:      "transaction reverted on-chain",
		}, nil
	}
}

func (s *Submitter) resolveTipCap(ctx context.Context) (*big.Int, error) {
	if strings.TrimSpace(s.opts.MaxPriorityFeeGwei) != "" {
		v, err := parseGwei(s.opts.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := s.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
