package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kbizikav/gasless-gas-station/internal/chain"
	"github.com/kbizikav/gasless-gas-station/internal/chain/signer"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/model"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
	"github.com/kbizikav/gasless-gas-station/internal/swap"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newApprovalsCommand() *cobra.Command {
	root := &cobra.Command{Use: "approvals", Short: "Allowance inspection and approval commands"}
	root.AddCommand(s.newApprovalsCheckCommand())
	root.AddCommand(s.newApprovalsRunCommand())
	return root
}

func (s *runtimeState) newApprovalsCheckCommand() *cobra.Command {
	var (
		ownerArg  string
		tokenArg  string
		amountArg string
		routerArg string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report both allowance layers for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext()
			defer cancel()

			client, err := s.dialChain(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			owner, err := parseAddress(ownerArg, "--owner")
			if err != nil {
				return err
			}
			token, err := parseAddress(firstNonEmpty(tokenArg, s.settings.TokenAddress), "--token")
			if err != nil {
				return err
			}
			router, err := s.resolveRouter(routerArg)
			if err != nil {
				return err
			}
			required, err := parseOptionalBig(amountArg, "--amount")
			if err != nil {
				return err
			}
			if required == nil {
				required = big.NewInt(0)
			}

			report, err := s.allowanceReport(ctx, client, owner, token, router, required)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report)
		},
	}
	cmd.Flags().StringVar(&ownerArg, "owner", "", "Owner address")
	cmd.Flags().StringVar(&tokenArg, "token", "", "Token address (defaults to configured token)")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Required amount in base units, for the needed flags")
	cmd.Flags().StringVar(&routerArg, "router", "", "Universal router address override")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func (s *runtimeState) newApprovalsRunCommand() *cobra.Command {
	var (
		tokenArg   string
		amountArg  string
		routerArg  string
		keySource  string
		privateKey string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Issue only the approvals a direct swap would need",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext()
			defer cancel()

			localSigner, err := signer.NewLocalSignerFromInputs(keySource, privateKey)
			if err != nil {
				return clierr.Wrap(clierr.CodeSigner, "load signing key", err)
			}
			client, err := s.dialChain(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			token, err := parseAddress(firstNonEmpty(tokenArg, s.settings.TokenAddress), "--token")
			if err != nil {
				return err
			}
			router, err := s.resolveRouter(routerArg)
			if err != nil {
				return err
			}
			required, err := parseOptionalBig(amountArg, "--amount")
			if err != nil {
				return err
			}
			if required == nil {
				return clierr.New(clierr.CodeUsage, "--amount is required")
			}

			submitter := execution.NewSubmitter(client.Eth(), localSigner, execution.DefaultSubmitOptions())
			raised, err := s.runNeededApprovals(ctx, client, submitter, localSigner.Address(), token, router, required)
			if err != nil {
				return err
			}
			report, err := s.allowanceReport(ctx, client, localSigner.Address(), token, router, required)
			if err != nil {
				return err
			}
			data := map[string]any{
				"approvals_submitted": raised,
				"allowances":          report,
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Token address (defaults to configured token)")
	cmd.Flags().StringVar(&amountArg, "amount", "", "Required amount in base units")
	cmd.Flags().StringVar(&routerArg, "router", "", "Universal router address override")
	cmd.Flags().StringVar(&keySource, "key-source", "auto", "Signing key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "Hex private key override")
	return cmd
}

// runNeededApprovals checks each layer in order and submits at most one
// approval per layer, waiting for confirmation before moving on.
func (s *runtimeState) runNeededApprovals(ctx context.Context, client *chain.Client, submitter *execution.Submitter, owner, token, router common.Address, required *big.Int) ([]string, error) {
	raised := make([]string, 0, 2)

	current, err := client.Allowance(ctx, token, owner, registry.Permit2Address)
	if err != nil {
		return nil, err
	}
	instruction, err := swap.EnsureTokenAllowance(current, required, token, registry.Permit2Address)
	if err != nil {
		return nil, err
	}
	if instruction != nil {
		if err := s.submitApproval(ctx, submitter, owner, *instruction); err != nil {
			return nil, err
		}
		raised = append(raised, string(instruction.Layer))
	}

	state, err := client.DelegateAllowance(ctx, owner, token, router)
	if err != nil {
		return nil, err
	}
	instruction, err = swap.EnsureDelegateAllowance(state, required, token, router, s.runner.now())
	if err != nil {
		return nil, err
	}
	if instruction != nil {
		if err := s.submitApproval(ctx, submitter, owner, *instruction); err != nil {
			return nil, err
		}
		raised = append(raised, string(instruction.Layer))
	}
	return raised, nil
}

func (s *runtimeState) submitApproval(ctx context.Context, submitter *execution.Submitter, owner common.Address, instruction swap.ApprovalInstruction) error {
	handle, err := submitter.Submit(ctx, instruction.Call)
	if err != nil {
		return err
	}
	record := execution.NewTaskRecord(handle, "approval:"+string(instruction.Layer), s.settings.ChainID, owner.Hex(), instruction.Call)
	s.saveTask(record)

	status, err := execution.AwaitTerminal(ctx, submitter.ReceiptStatus(handle), s.pollOptions())
	if err != nil {
		return err
	}
	record.Apply(status)
	s.saveTask(record)
	switch status.State {
	case execution.StateConfirmed:
		return nil
	case execution.StateFailed:
		return clierr.New(clierr.CodeReverted, fmt.Sprintf("%s approval failed: %s", instruction.Layer, status.Reason))
	default:
		return clierr.New(clierr.CodeTimeout, fmt.Sprintf("%s approval still pending after polling budget; re-check %s", instruction.Layer, handle.ID))
	}
}

func (s *runtimeState) allowanceReport(ctx context.Context, client *chain.Client, owner, token, router common.Address, required *big.Int) (model.AllowanceReport, error) {
	tokenAllowance, err := client.Allowance(ctx, token, owner, registry.Permit2Address)
	if err != nil {
		return model.AllowanceReport{}, err
	}
	delegate, err := client.DelegateAllowance(ctx, owner, token, router)
	if err != nil {
		return model.AllowanceReport{}, err
	}

	now := s.runner.now()
	delegateAmount := delegate.Amount
	if delegateAmount == nil {
		delegateAmount = big.NewInt(0)
	}
	delegateExpired := int64(delegate.Expiration) < now.Unix()
	return model.AllowanceReport{
		ChainID:            s.settings.ChainID,
		Owner:              owner.Hex(),
		Token:              token.Hex(),
		TokenSpender:       registry.Permit2Address.Hex(),
		TokenAllowance:     tokenAllowance.String(),
		DelegateSpender:    router.Hex(),
		DelegateAllowance:  delegateAmount.String(),
		DelegateExpiration: delegate.Expiration,
		DelegateNonce:      delegate.Nonce,
		TokenApprovalNeed:  tokenAllowance.Cmp(required) < 0,
		DelegateNeed:       delegateAmount.Cmp(required) < 0 || delegateExpired,
		FetchedAt:          now.UTC().Format(time.RFC3339),
	}, nil
}
