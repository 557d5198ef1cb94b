package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func addrZero() common.Address { return common.Address{} }

func TestUniversalRouterKnownChains(t *testing.T) {
	for _, chainID := range []int64{1, 10, 130, 137, 8453, 42161} {
		addr, err := UniversalRouter(chainID)
		if err != nil {
			t.Fatalf("chain %d: %v", chainID, err)
		}
		if addr == (addrZero()) {
			t.Fatalf("chain %d: zero router address", chainID)
		}
	}
	if _, err := UniversalRouter(59144); err == nil {
		t.Fatal("expected error for unregistered chain")
	}
}

func TestResolveRPCURL(t *testing.T) {
	url, err := ResolveRPCURL("", 8453)
	if err != nil {
		t.Fatalf("ResolveRPCURL failed: %v", err)
	}
	if url == "" {
		t.Fatal("expected a default rpc url for base")
	}
	url, err = ResolveRPCURL("https://custom.invalid/rpc", 8453)
	if err != nil {
		t.Fatalf("ResolveRPCURL failed: %v", err)
	}
	if url != "https://custom.invalid/rpc" {
		t.Fatalf("override ignored, got %s", url)
	}
	if _, err := ResolveRPCURL("", 59144); err == nil {
		t.Fatal("expected error for chain without default rpc")
	}
}

func TestABIsParse(t *testing.T) {
	cases := map[string]struct {
		raw     string
		methods []string
	}{
		"erc20":      {ERC20PermitABI, []string{"name", "decimals", "balanceOf", "nonces", "allowance", "approve"}},
		"permit2":    {Permit2ABI, []string{"allowance", "approve"}},
		"router":     {UniversalRouterABI, []string{"execute"}},
		"permitSwap": {PermitSwapABI, []string{"permitSwapAndPayFeeNative"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			parsed, err := abi.JSON(strings.NewReader(tc.raw))
			if err != nil {
				t.Fatalf("parse %s abi: %v", name, err)
			}
			for _, method := range tc.methods {
				if _, ok := parsed.Methods[method]; !ok {
					t.Fatalf("%s abi missing method %s", name, method)
				}
			}
		})
	}
}

func TestPermit2AllowanceShape(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(Permit2ABI))
	if err != nil {
		t.Fatalf("parse permit2 abi: %v", err)
	}
	method := parsed.Methods["allowance"]
	if len(method.Inputs) != 3 || len(method.Outputs) != 3 {
		t.Fatalf("allowance has %d inputs / %d outputs, want 3/3", len(method.Inputs), len(method.Outputs))
	}
	if method.Outputs[0].Type.String() != "uint160" {
		t.Fatalf("allowance amount type = %s, want uint160", method.Outputs[0].Type)
	}
	if method.Outputs[1].Type.String() != "uint48" {
		t.Fatalf("allowance expiration type = %s, want uint48", method.Outputs[1].Type)
	}
}
