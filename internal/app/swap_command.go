package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kbizikav/gasless-gas-station/internal/amount"
	"github.com/kbizikav/gasless-gas-station/internal/chain"
	"github.com/kbizikav/gasless-gas-station/internal/chain/signer"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/httpx"
	"github.com/kbizikav/gasless-gas-station/internal/model"
	"github.com/kbizikav/gasless-gas-station/internal/out"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
	"github.com/kbizikav/gasless-gas-station/internal/relay"
	"github.com/kbizikav/gasless-gas-station/internal/swap"
	"github.com/spf13/cobra"
)

type swapRunFlags struct {
	tokenIn       string
	tokenOut      string
	feeTier       uint32
	amountBase    string
	amountDecimal string
	minOut        string
	recipient     string
	router        string
	keySource     string
	privateKey    string
	maxFeeGwei    string
	maxTipGwei    string
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	root := &cobra.Command{Use: "swap", Short: "Swap execution commands"}
	root.AddCommand(s.newSwapRunCommand())
	root.AddCommand(s.newSwapRelayCommand())
	root.AddCommand(s.newSwapPlanCommand())
	root.AddCommand(s.newSwapStatusCommand())
	return root
}

func (s *runtimeState) newSwapRunCommand() *cobra.Command {
	var f swapRunFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Swap through the universal router, paying gas directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := s.commandContext()
			defer cancel()

			localSigner, err := signer.NewLocalSignerFromInputs(f.keySource, f.privateKey)
			if err != nil {
				return clierr.Wrap(clierr.CodeSigner, "load signing key", err)
			}
			client, err := s.dialChain(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			tokenIn, err := parseAddress(firstNonEmpty(f.tokenIn, s.settings.TokenAddress), "--token-in")
			if err != nil {
				return err
			}
			tokenOut, err := parseAddress(f.tokenOut, "--token-out")
			if err != nil {
				return err
			}
			router, err := s.resolveRouter(f.router)
			if err != nil {
				return err
			}
			amountIn, err := s.resolveAmount(ctx, client, tokenIn, f.amountBase, f.amountDecimal)
			if err != nil {
				return err
			}
			minOut, err := parseOptionalBig(f.minOut, "--min-out")
			if err != nil {
				return err
			}
			var recipient common.Address
			if strings.TrimSpace(f.recipient) != "" {
				if recipient, err = parseAddress(f.recipient, "--recipient"); err != nil {
					return err
				}
			}

			submitter := execution.NewSubmitter(client.Eth(), localSigner, execution.SubmitOptions{
				GasMultiplier:      1.2,
				MaxFeeGwei:         f.maxFeeGwei,
				MaxPriorityFeeGwei: f.maxTipGwei,
			})
			orchestrator := swap.NewOrchestrator(client, submitter, nil, s.pollOptions())

			req := swap.RouterSwapRequest{
				Owner:          localSigner.Address(),
				Recipient:      recipient,
				Router:         router,
				Hops:           []swap.Hop{{TokenIn: tokenIn, FeeTier: f.feeTier, TokenOut: tokenOut}},
				AmountIn:       amountIn,
				MinimumOut:     minOut,
				DeadlineOffset: s.settings.SwapDeadline,
			}
			outcome, runErr := orchestrator.RouterSwap(ctx, req)
			s.persistOutcome(outcome, "router", localSigner.Address(), router)
			if runErr != nil {
				return runErr
			}

			report := s.swapReport(outcome, "router", localSigner.Address().Hex(), tokenIn.Hex(), amountIn, minOut)
			if s.settings.OutputMode == "plain" && outcome.State == swap.StateConfirmed {
				return out.RenderLines(s.runner.stdout,
					fmt.Sprintf("transaction: %s", report.TxHash),
					fmt.Sprintf("confirmed in block %s", report.BlockNumber),
				)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report)
		},
	}
	cmd.Flags().StringVar(&f.tokenIn, "token-in", "", "Input token address (defaults to configured token)")
	cmd.Flags().StringVar(&f.tokenOut, "token-out", "", "Output token address")
	cmd.Flags().Uint32Var(&f.feeTier, "fee-tier", 100, "Pool fee tier in hundredths of a bip")
	cmd.Flags().StringVar(&f.amountBase, "amount", "", "Input amount in base units")
	cmd.Flags().StringVar(&f.amountDecimal, "amount-decimal", "", "Input amount in decimal units")
	cmd.Flags().StringVar(&f.minOut, "min-out", "", "Minimum acceptable output in base units")
	cmd.Flags().StringVar(&f.recipient, "recipient", "", "Swap output recipient (defaults to signer)")
	cmd.Flags().StringVar(&f.router, "router", "", "Universal router address override")
	cmd.Flags().StringVar(&f.keySource, "key-source", "auto", "Signing key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&f.privateKey, "private-key", "", "Hex private key override")
	cmd.Flags().StringVar(&f.maxFeeGwei, "max-fee-gwei", "", "Fee cap override in gwei")
	cmd.Flags().StringVar(&f.maxTipGwei, "max-priority-fee-gwei", "", "Tip cap override in gwei")
	_ = cmd.MarkFlagRequired("token-out")
	return cmd
}

func (s *runtimeState) newSwapRelayCommand() *cobra.Command {
	var (
		tokenArg      string
		targetArg     string
		amountBase    string
		amountDecimal string
		minNativeOut  string
		maxFeeWei     string
		keySource     string
		privateKey    string
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Swap to native currency through the gas-sponsoring relay",
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
			target, err := parseAddress(firstNonEmpty(targetArg, s.settings.TargetAddress), "--target")
			if err != nil {
				return err
			}
			value, err := s.resolveAmount(ctx, client, token, amountBase, amountDecimal)
			if err != nil {
				return err
			}
			minOut, err := parseOptionalBig(minNativeOut, "--min-native-out")
			if err != nil {
				return err
			}
			if minOut == nil {
				minOut = s.settings.MinNativeOut
			}
			var userMaxFee *big.Int
			if strings.TrimSpace(maxFeeWei) != "" {
				if userMaxFee, err = parseOptionalBig(maxFeeWei, "--max-fee"); err != nil {
					return err
				}
			}

			relayClient := relay.New(httpx.New(s.settings.Timeout, s.settings.Retries), s.settings.RelayAPIKey)
			orchestrator := swap.NewOrchestrator(client, nil, relayClient, s.pollOptions())

			req := swap.RelaySwapRequest{
				ChainID:        s.settings.ChainID,
				Owner:          localSigner.Address(),
				Target:         target,
				Token:          token,
				Amount:         value,
				MinNativeOut:   minOut,
				PermitDeadline: s.settings.PermitDeadline,
				SwapDeadline:   s.settings.SwapDeadline,
				GasLimit:       s.settings.GasLimit,
				FeeBufferBps:   s.settings.FeeBufferBps,
				HighPriority:   s.settings.HighPriority,
				UserMaxFee:     userMaxFee,
				Sign:           localSigner.SignTypedData,
			}
			outcome, runErr := orchestrator.RelaySwap(ctx, req)
			s.persistOutcome(outcome, "relay", localSigner.Address(), target)
			if runErr != nil {
				return runErr
			}

			report := s.swapReport(outcome, "relay", localSigner.Address().Hex(), token.Hex(), value, minOut)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report)
		},
	}
	cmd.Flags().StringVar(&tokenArg, "token", "", "Token to swap (defaults to configured token)")
	cmd.Flags().StringVar(&targetArg, "target", "", "Permit-swap contract address")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&minNativeOut, "min-native-out", "", "Minimum native output in wei")
	cmd.Flags().StringVar(&maxFeeWei, "max-fee", "", "Hard cap on the relay fee in wei")
	cmd.Flags().StringVar(&keySource, "key-source", "auto", "Signing key source (auto|env|file|keystore)")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "Hex private key override")
	return cmd
}

func (s *runtimeState) newSwapPlanCommand() *cobra.Command {
	var (
		ownerArg      string
		tokenIn       string
		tokenOut      string
		feeTier       uint32
		amountBase    string
		amountDecimal string
		routerArg     string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Report the approvals a direct swap would require, without submitting",
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
			token, err := parseAddress(firstNonEmpty(tokenIn, s.settings.TokenAddress), "--token-in")
			if err != nil {
				return err
			}
			outToken, err := parseAddress(tokenOut, "--token-out")
			if err != nil {
				return err
			}
			router, err := s.resolveRouter(routerArg)
			if err != nil {
				return err
			}
			value, err := s.resolveAmount(ctx, client, token, amountBase, amountDecimal)
			if err != nil {
				return err
			}
			if _, err := swap.NewRouterPath([]swap.Hop{{TokenIn: token, FeeTier: feeTier, TokenOut: outToken}}); err != nil {
				return err
			}

			report, err := s.allowanceReport(ctx, client, owner, token, router, value.Value)
			if err != nil {
				return err
			}
			plan := model.SwapPlan{
				ChainID:  s.settings.ChainID,
				Owner:    owner.Hex(),
				TokenIn:  token.Hex(),
				TokenOut: outToken.Hex(),
				FeeTier:  feeTier,
				Router:   router.Hex(),
				AmountIn: model.AmountInfo{
					AmountBaseUnits: value.String(),
					AmountDecimal:   value.DecimalString(),
					Decimals:        value.Decimals,
				},
				Allowances: report,
				Deadline:   amount.Deadline(s.runner.now(), s.settings.SwapDeadline).String(),
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), plan)
		},
	}
	cmd.Flags().StringVar(&ownerArg, "owner", "", "Owner address")
	cmd.Flags().StringVar(&tokenIn, "token-in", "", "Input token address")
	cmd.Flags().StringVar(&tokenOut, "token-out", "", "Output token address")
	cmd.Flags().Uint32Var(&feeTier, "fee-tier", 100, "Pool fee tier in hundredths of a bip")
	cmd.Flags().StringVar(&amountBase, "amount", "", "Amount in base units")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Amount in decimal units")
	cmd.Flags().StringVar(&routerArg, "router", "", "Universal router address override")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("token-out")
	return cmd
}

func (s *runtimeState) newSwapStatusCommand() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check a submitted swap task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.showTaskStatus(cmd, taskID)
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "Task id (tx hash or relay task id)")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func (s *runtimeState) commandContext() (context.Context, context.CancelFunc) {
	// One budget for the whole pipeline: polling dominates, so the budget is
	// attempts x interval plus headroom for submission round-trips.
	budget := time.Duration(s.settings.StatusPollAttempts+2)*s.settings.StatusPollInterval + 3*s.settings.Timeout
	return context.WithTimeout(context.Background(), budget)
}

func (s *runtimeState) pollOptions() execution.PollOptions {
	return execution.PollOptions{
		MaxAttempts: s.settings.StatusPollAttempts,
		Interval:    s.settings.StatusPollInterval,
	}
}

func (s *runtimeState) dialChain(ctx context.Context) (*chain.Client, error) {
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc endpoint", err)
	}
	return chain.Dial(ctx, rpcURL)
}

func (s *runtimeState) resolveRouter(override string) (common.Address, error) {
	if strings.TrimSpace(override) != "" {
		return parseAddress(override, "--router")
	}
	router, err := registry.UniversalRouter(s.settings.ChainID)
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUnsupported, "resolve universal router", err)
	}
	return router, nil
}

// resolveAmount accepts either base units or a decimal string scaled by the
// token's on-chain decimals. Exactly one of the two must be set.
func (s *runtimeState) resolveAmount(ctx context.Context, client *chain.Client, token common.Address, base, decimal string) (amount.TokenAmount, error) {
	hasBase := strings.TrimSpace(base) != ""
	hasDecimal := strings.TrimSpace(decimal) != ""
	if hasBase == hasDecimal {
		return amount.TokenAmount{}, clierr.New(clierr.CodeUsage, "provide exactly one of --amount or --amount-decimal")
	}
	info, err := client.TokenInfo(ctx, token)
	if err != nil {
		return amount.TokenAmount{}, err
	}
	if hasBase {
		return amount.ParseBaseUnits(base, int(info.Decimals))
	}
	return amount.ParseDecimal(decimal, int(info.Decimals))
}

func (s *runtimeState) persistOutcome(outcome swap.Outcome, path string, owner, target common.Address) {
	if outcome.Handle.ID == "" {
		return
	}
	record := execution.NewTaskRecord(outcome.Handle, path, s.settings.ChainID, owner.Hex(), execution.Call{To: target})
	if outcome.Status.State != "" {
		record.Apply(outcome.Status)
	}
	s.saveTask(record)
}

func (s *runtimeState) swapReport(outcome swap.Outcome, path, owner, token string, in amount.TokenAmount, minOut *big.Int) model.SwapReport {
	report := model.SwapReport{
		TaskID:  outcome.Handle.ID,
		Path:    path,
		ChainID: s.settings.ChainID,
		Owner:   owner,
		Token:   token,
		AmountIn: model.AmountInfo{
			AmountBaseUnits: in.String(),
			AmountDecimal:   in.DecimalString(),
			Decimals:        in.Decimals,
		},
		Status: string(outcome.State),
		TxHash: outcome.Status.TxHash,
	}
	if minOut != nil {
		report.MinimumOut = minOut.String()
	} else {
		report.MinimumOut = "0"
	}
	if outcome.MaxFee != nil {
		report.MaxFee = outcome.MaxFee.String()
	}
	for _, layer := range outcome.Approvals {
		report.Approvals = append(report.Approvals, string(layer))
	}
	if outcome.Status.BlockNumber != nil {
		report.BlockNumber = outcome.Status.BlockNumber.String()
	}
	if outcome.State == swap.StateExpired {
		report.LastKnown = string(outcome.Status.State)
	}
	if outcome.Status.Reason != "" {
		report.FailureReason = outcome.Status.Reason
	}
	return report
}

func parseAddress(input, flag string) (common.Address, error) {
	clean := strings.TrimSpace(input)
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a hex address", flag))
	}
	return common.HexToAddress(clean), nil
}

func parseOptionalBig(input, flag string) (*big.Int, error) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(clean, 10)
	if !ok || v.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s must be a non-negative integer", flag))
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
