package swap

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
)

// Command is one router opcode. Each command owns its ABI-encoded input blob;
// commands are concatenated in sequence order against an inputs array of
// equal length, so extending to multi-command execution stays type-safe.
type Command byte

const CommandV3SwapExactIn Command = 0x00

// RouterCommand pairs an opcode with its encoded input slot.
type RouterCommand struct {
	Command Command
	Input   []byte
}

// ExactInParams is the input tuple for a V3 exact-input swap command.
type ExactInParams struct {
	Recipient   common.Address
	AmountIn    *big.Int
	MinimumOut  *big.Int
	Path        RouterPath
	PayerIsUser bool
}

var (
	routerABI     = mustEncoderABI(registry.UniversalRouterABI)
	permitSwapABI = mustEncoderABI(registry.PermitSwapABI)

	exactInArgs = abi.Arguments{
		{Name: "recipient", Type: mustType("address")},
		{Name: "amountIn", Type: mustType("uint256")},
		{Name: "amountOutMin", Type: mustType("uint256")},
		{Name: "path", Type: mustType("bytes")},
		{Name: "payerIsUser", Type: mustType("bool")},
	}
)

// EncodeV3SwapExactIn builds the exact-input swap command.
func EncodeV3SwapExactIn(p ExactInParams) (RouterCommand, error) {
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 {
		return RouterCommand{}, clierr.New(clierr.CodeUsage, "invalid amount: swap input must be positive")
	}
	minOut := p.MinimumOut
	if minOut == nil {
		minOut = big.NewInt(0)
	}
	input, err := exactInArgs.Pack(p.Recipient, p.AmountIn, minOut, p.Path.Pack(), p.PayerIsUser)
	if err != nil {
		return RouterCommand{}, clierr.Wrap(clierr.CodeInternal, "encode exact-input swap tuple", err)
	}
	return RouterCommand{Command: CommandV3SwapExactIn, Input: input}, nil
}

// DecodeV3SwapExactIn reverses EncodeV3SwapExactIn; round-trip tests depend
// on it reproducing every structured field.
func DecodeV3SwapExactIn(input []byte) (ExactInParams, error) {
	values, err := exactInArgs.Unpack(input)
	if err != nil || len(values) != 5 {
		return ExactInParams{}, clierr.Wrap(clierr.CodeInternal, "decode exact-input swap tuple", err)
	}
	packedPath, ok := values[3].([]byte)
	if !ok {
		return ExactInParams{}, clierr.New(clierr.CodeInternal, "decoded path is not bytes")
	}
	path, err := UnpackRouterPath(packedPath)
	if err != nil {
		return ExactInParams{}, err
	}
	return ExactInParams{
		Recipient:   values[0].(common.Address),
		AmountIn:    values[1].(*big.Int),
		MinimumOut:  values[2].(*big.Int),
		Path:        path,
		PayerIsUser: values[4].(bool),
	}, nil
}

// EncodeExecute assembles the router entry call: one opcode byte per command
// plus the matching inputs array, in sequence order.
func EncodeExecute(commands []RouterCommand, deadline *big.Int) ([]byte, error) {
	if len(commands) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "router execution requires at least one command")
	}
	opcodes := make([]byte, len(commands))
	inputs := make([][]byte, len(commands))
	for i, cmd := range commands {
		opcodes[i] = byte(cmd.Command)
		inputs[i] = cmd.Input
	}
	data, err := routerABI.Pack("execute", opcodes, inputs, deadline)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode router execute call", err)
	}
	return data, nil
}

// ABI tuple bindings for the permit-swap contract.
type permitTuple struct {
	Owner    common.Address
	Value    *big.Int
	Deadline *big.Int
	V        uint8
	R        [32]byte
	S        [32]byte
}

type swapTuple struct {
	MinEthOut *big.Int
	Deadline  *big.Int
}

// EncodePermitSwap builds the single structured call that performs permit
// validation, the swap and the fee deduction atomically. No command buffer is
// needed on this path.
func EncodePermitSwap(permit PermitParameters, params SwapParameters, fee FeeBound) ([]byte, error) {
	if permit.Value == nil || permit.Deadline == nil {
		return nil, clierr.New(clierr.CodeInternal, "permit parameters are incomplete")
	}
	if params.Deadline == nil {
		return nil, clierr.New(clierr.CodeUsage, "swap deadline is required")
	}
	if fee.MaximumFee == nil || fee.MaximumFee.Sign() < 0 {
		return nil, clierr.New(clierr.CodeFeeBound, "maximum fee must be non-negative")
	}
	minOut := params.MinimumOut
	if minOut == nil {
		minOut = big.NewInt(0)
	}
	data, err := permitSwapABI.Pack("permitSwapAndPayFeeNative",
		permitTuple{
			Owner:    permit.Owner,
			Value:    permit.Value,
			Deadline: permit.Deadline,
			V:        permit.V,
			R:        permit.R,
			S:        permit.S,
		},
		swapTuple{
			MinEthOut: minOut,
			Deadline:  params.Deadline,
		},
		fee.MaximumFee,
	)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode permit swap call", err)
	}
	return data, nil
}

// DecodePermitSwap reverses EncodePermitSwap for round-trip verification.
func DecodePermitSwap(data []byte) (PermitParameters, SwapParameters, FeeBound, error) {
	method, ok := permitSwapABI.Methods["permitSwapAndPayFeeNative"]
	if !ok {
		return PermitParameters{}, SwapParameters{}, FeeBound{}, clierr.New(clierr.CodeInternal, "permit swap method missing from ABI")
	}
	if len(data) < 4 {
		return PermitParameters{}, SwapParameters{}, FeeBound{}, clierr.New(clierr.CodeInternal, "calldata too short")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil || len(values) != 3 {
		return PermitParameters{}, SwapParameters{}, FeeBound{}, clierr.Wrap(clierr.CodeInternal, "decode permit swap call", err)
	}

	rawPermit := *abi.ConvertType(values[0], new(permitTuple)).(*permitTuple)
	rawSwap := *abi.ConvertType(values[1], new(swapTuple)).(*swapTuple)
	maxFee := *abi.ConvertType(values[2], new(*big.Int)).(**big.Int)

	permit := PermitParameters{
		Owner:    rawPermit.Owner,
		Value:    rawPermit.Value,
		Deadline: rawPermit.Deadline,
		V:        rawPermit.V,
		R:        rawPermit.R,
		S:        rawPermit.S,
	}
	params := SwapParameters{MinimumOut: rawSwap.MinEthOut, Deadline: rawSwap.Deadline}
	return permit, params, FeeBound{MaximumFee: maxFee}, nil
}

func mustEncoderABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}
