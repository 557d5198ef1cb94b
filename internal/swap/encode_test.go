package swap

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testHop() Hop {
	return Hop{
		TokenIn:  common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		FeeTier:  100,
		TokenOut: common.HexToAddress("0xfde4C96c8593536E31F229EA8f37b2ADa2699bb2"),
	}
}

func TestRouterPathPackSingleHop(t *testing.T) {
	path, err := NewRouterPath([]Hop{testHop()})
	if err != nil {
		t.Fatalf("NewRouterPath failed: %v", err)
	}
	packed := path.Pack()
	if len(packed) != 43 {
		t.Fatalf("single-hop packed path length = %d, want 43", len(packed))
	}
	if !bytes.Equal(packed[:20], testHop().TokenIn.Bytes()) {
		t.Fatal("packed path must start with the input token")
	}
	if packed[20] != 0 || packed[21] != 0 || packed[22] != 100 {
		t.Fatalf("fee tier bytes = %v, want big-endian uint24 100", packed[20:23])
	}
	if !bytes.Equal(packed[23:], testHop().TokenOut.Bytes()) {
		t.Fatal("packed path must end with the output token")
	}
}

func TestRouterPathPackRoundTrip(t *testing.T) {
	mid := common.HexToAddress("0x4200000000000000000000000000000000000006")
	hops := []Hop{
		{TokenIn: testHop().TokenIn, FeeTier: 500, TokenOut: mid},
		{TokenIn: mid, FeeTier: 3000, TokenOut: testHop().TokenOut},
	}
	path, err := NewRouterPath(hops)
	if err != nil {
		t.Fatalf("NewRouterPath failed: %v", err)
	}
	packed := path.Pack()
	if len(packed) != 66 {
		t.Fatalf("two-hop packed path length = %d, want 66", len(packed))
	}
	decoded, err := UnpackRouterPath(packed)
	if err != nil {
		t.Fatalf("UnpackRouterPath failed: %v", err)
	}
	got := decoded.Hops()
	if len(got) != 2 {
		t.Fatalf("decoded %d hops, want 2", len(got))
	}
	for i := range hops {
		if got[i] != hops[i] {
			t.Fatalf("hop %d = %+v, want %+v", i, got[i], hops[i])
		}
	}
}

func TestNewRouterPathValidation(t *testing.T) {
	if _, err := NewRouterPath(nil); err == nil {
		t.Fatal("expected error for empty hop list")
	}
	bad := testHop()
	bad.FeeTier = 0
	if _, err := NewRouterPath([]Hop{bad}); err == nil {
		t.Fatal("expected error for zero fee tier")
	}
	broken := []Hop{
		testHop(),
		{TokenIn: common.HexToAddress("0x00000000000000000000000000000000000000AA"), FeeTier: 100, TokenOut: testHop().TokenIn},
	}
	if _, err := NewRouterPath(broken); err == nil {
		t.Fatal("expected error for hops that do not chain")
	}
}

func TestUnpackRouterPathRejectsBadLength(t *testing.T) {
	if _, err := UnpackRouterPath(make([]byte, 42)); err == nil {
		t.Fatal("expected error for truncated path")
	}
	if _, err := UnpackRouterPath(make([]byte, 44)); err == nil {
		t.Fatal("expected error for misaligned path")
	}
}

func TestEncodeV3SwapExactInRoundTrip(t *testing.T) {
	path, err := NewRouterPath([]Hop{testHop()})
	if err != nil {
		t.Fatalf("NewRouterPath failed: %v", err)
	}
	params := ExactInParams{
		Recipient:   common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		AmountIn:    big.NewInt(1_000_000),
		MinimumOut:  big.NewInt(990_000),
		Path:        path,
		PayerIsUser: true,
	}
	command, err := EncodeV3SwapExactIn(params)
	if err != nil {
		t.Fatalf("EncodeV3SwapExactIn failed: %v", err)
	}
	if command.Command != CommandV3SwapExactIn {
		t.Fatalf("command byte = %#x, want 0x00", byte(command.Command))
	}
	decoded, err := DecodeV3SwapExactIn(command.Input)
	if err != nil {
		t.Fatalf("DecodeV3SwapExactIn failed: %v", err)
	}
	if decoded.Recipient != params.Recipient {
		t.Fatalf("recipient = %s, want %s", decoded.Recipient, params.Recipient)
	}
	if decoded.AmountIn.Cmp(params.AmountIn) != 0 || decoded.MinimumOut.Cmp(params.MinimumOut) != 0 {
		t.Fatal("amounts did not round trip")
	}
	if !decoded.PayerIsUser {
		t.Fatal("payerIsUser did not round trip")
	}
	if !bytes.Equal(decoded.Path.Pack(), path.Pack()) {
		t.Fatal("path did not round trip")
	}
}

func TestEncodeV3SwapExactInRejectsZeroAmount(t *testing.T) {
	path, _ := NewRouterPath([]Hop{testHop()})
	_, err := EncodeV3SwapExactIn(ExactInParams{AmountIn: big.NewInt(0), Path: path})
	if err == nil {
		t.Fatal("expected error for zero input amount")
	}
}

func TestEncodeExecute(t *testing.T) {
	path, _ := NewRouterPath([]Hop{testHop()})
	command, err := EncodeV3SwapExactIn(ExactInParams{
		Recipient: common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		AmountIn:  big.NewInt(1),
		Path:      path,
	})
	if err != nil {
		t.Fatalf("encode command: %v", err)
	}
	deadline := big.NewInt(1_700_001_800)
	data, err := EncodeExecute([]RouterCommand{command}, deadline)
	if err != nil {
		t.Fatalf("EncodeExecute failed: %v", err)
	}
	// execute(bytes,bytes[],uint256) selector.
	method, err := routerABI.MethodById(data[:4])
	if err != nil || method.Name != "execute" {
		t.Fatalf("selector does not resolve to execute: %v", err)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack execute args: %v", err)
	}
	opcodes := values[0].([]byte)
	if len(opcodes) != 1 || opcodes[0] != byte(CommandV3SwapExactIn) {
		t.Fatalf("opcodes = %v, want [0x00]", opcodes)
	}
	inputs := values[1].([][]byte)
	if len(inputs) != 1 || !bytes.Equal(inputs[0], command.Input) {
		t.Fatal("inputs array must mirror the command sequence")
	}
	if values[2].(*big.Int).Cmp(deadline) != 0 {
		t.Fatal("deadline did not encode")
	}
}

func TestEncodeExecuteRejectsEmptySequence(t *testing.T) {
	if _, err := EncodeExecute(nil, big.NewInt(1)); err == nil {
		t.Fatal("expected error for empty command sequence")
	}
}

func TestEncodePermitSwapRoundTrip(t *testing.T) {
	permit := PermitParameters{
		Owner:    common.HexToAddress("0x00000000000000000000000000000000000000AA"),
		Value:    big.NewInt(1_000_000),
		Deadline: big.NewInt(1_700_001_800),
		V:        27,
	}
	for i := range permit.R {
		permit.R[i] = byte(i)
		permit.S[i] = byte(255 - i)
	}
	params := SwapParameters{MinimumOut: big.NewInt(12345), Deadline: big.NewInt(1_700_001_200)}
	fee := FeeBound{MaximumFee: big.NewInt(600_000_000_000_000)}

	data, err := EncodePermitSwap(permit, params, fee)
	if err != nil {
		t.Fatalf("EncodePermitSwap failed: %v", err)
	}
	gotPermit, gotParams, gotFee, err := DecodePermitSwap(data)
	if err != nil {
		t.Fatalf("DecodePermitSwap failed: %v", err)
	}
	if gotPermit.Owner != permit.Owner || gotPermit.V != permit.V {
		t.Fatal("permit header did not round trip")
	}
	if gotPermit.R != permit.R || gotPermit.S != permit.S {
		t.Fatal("signature halves did not round trip")
	}
	if gotPermit.Value.Cmp(permit.Value) != 0 || gotPermit.Deadline.Cmp(permit.Deadline) != 0 {
		t.Fatal("permit amounts did not round trip")
	}
	if gotParams.MinimumOut.Cmp(params.MinimumOut) != 0 || gotParams.Deadline.Cmp(params.Deadline) != 0 {
		t.Fatal("swap parameters did not round trip")
	}
	if gotFee.MaximumFee.Cmp(fee.MaximumFee) != 0 {
		t.Fatal("fee bound did not round trip")
	}
}

func TestEncodePermitSwapDefaultsMinOut(t *testing.T) {
	permit := PermitParameters{Value: big.NewInt(1), Deadline: big.NewInt(2)}
	data, err := EncodePermitSwap(permit, SwapParameters{Deadline: big.NewInt(3)}, FeeBound{MaximumFee: big.NewInt(4)})
	if err != nil {
		t.Fatalf("EncodePermitSwap failed: %v", err)
	}
	_, gotParams, _, err := DecodePermitSwap(data)
	if err != nil {
		t.Fatalf("DecodePermitSwap failed: %v", err)
	}
	if gotParams.MinimumOut.Sign() != 0 {
		t.Fatalf("default minimum out = %s, want 0", gotParams.MinimumOut)
	}
}

func TestEncodePermitSwapRejectsMissingFee(t *testing.T) {
	permit := PermitParameters{Value: big.NewInt(1), Deadline: big.NewInt(2)}
	if _, err := EncodePermitSwap(permit, SwapParameters{Deadline: big.NewInt(3)}, FeeBound{}); err == nil {
		t.Fatal("expected error for missing fee bound")
	}
}
