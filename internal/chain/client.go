package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
)

// TokenInfo is the read-only token surface needed to build typed-data domains
// and scale amounts.
type TokenInfo struct {
	Name     string
	Version  string
	Decimals uint8
}

// AllowanceState is an on-chain snapshot for one (owner, token, spender)
// triple in the delegation registry. It is never mutated locally; callers
// re-read after an approval confirms.
type AllowanceState struct {
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

// Client wraps an RPC connection with the contract reads the swap pipeline
// depends on. All methods are single reads; no method caches or mutates.
type Client struct {
	eth     *ethclient.Client
	erc20   abi.ABI
	permit2 abi.ABI
}

func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return NewClient(eth), nil
}

func NewClient(eth *ethclient.Client) *Client {
	return &Client{
		eth:     eth,
		erc20:   mustABI(registry.ERC20PermitABI),
		permit2: mustABI(registry.Permit2ABI),
	}
}

func (c *Client) Close() {
	if c != nil && c.eth != nil {
		c.eth.Close()
	}
}

// Eth exposes the underlying client for transaction submission.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	return chainID, nil
}

// TokenInfo reads name, version and decimals. Tokens predating ERC-5267 often
// lack version(); those fall back to "1", the value EIP-2612 domains assume.
func (c *Client) TokenInfo(ctx context.Context, token common.Address) (TokenInfo, error) {
	var info TokenInfo
	if err := c.callERC20(ctx, token, "name", &info.Name); err != nil {
		return TokenInfo{}, err
	}
	if err := c.callERC20(ctx, token, "version", &info.Version); err != nil {
		info.Version = "1"
	}
	if err := c.callERC20(ctx, token, "decimals", &info.Decimals); err != nil {
		return TokenInfo{}, err
	}
	return info, nil
}

func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.callERC20(ctx, token, "balanceOf", &out, owner); err != nil {
		return nil, err
	}
	return out, nil
}

// PermitNonce reads the EIP-2612 nonce for owner.
func (c *Client) PermitNonce(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.callERC20(ctx, token, "nonces", &out, owner); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.callERC20(ctx, token, "allowance", &out, owner, spender); err != nil {
		return nil, err
	}
	return out, nil
}

// DelegateAllowance reads the (amount, expiration, nonce) triple from the
// Permit2 registry.
func (c *Client) DelegateAllowance(ctx context.Context, owner, token, spender common.Address) (AllowanceState, error) {
	data, err := c.permit2.Pack("allowance", owner, token, spender)
	if err != nil {
		return AllowanceState{}, clierr.Wrap(clierr.CodeInternal, "pack permit2 allowance call", err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &registry.Permit2Address, Data: data}, nil)
	if err != nil {
		return AllowanceState{}, clierr.Wrap(clierr.CodeUnavailable, "read permit2 allowance", err)
	}
	values, err := c.permit2.Unpack("allowance", raw)
	if err != nil || len(values) != 3 {
		return AllowanceState{}, clierr.Wrap(clierr.CodeUnavailable, "decode permit2 allowance", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return AllowanceState{}, clierr.New(clierr.CodeUnavailable, "unexpected permit2 allowance amount type")
	}
	expiration, err := toUint64(values[1])
	if err != nil {
		return AllowanceState{}, clierr.Wrap(clierr.CodeUnavailable, "decode permit2 expiration", err)
	}
	nonce, err := toUint64(values[2])
	if err != nil {
		return AllowanceState{}, clierr.Wrap(clierr.CodeUnavailable, "decode permit2 nonce", err)
	}
	return AllowanceState{Amount: amount, Expiration: expiration, Nonce: nonce}, nil
}

func (c *Client) callERC20(ctx context.Context, token common.Address, method string, out any, args ...any) error {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, fmt.Sprintf("pack %s call", method), err)
	}
	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("read token %s", method), err)
	}
	if err := c.erc20.UnpackIntoInterface(out, method, raw); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("decode token %s", method), err)
	}
	return nil
}

func toUint64(v any) (uint64, error) {
	switch t := v.(type) {
	case *big.Int:
		if !t.IsUint64() {
			return 0, fmt.Errorf("value %s exceeds uint64", t)
		}
		return t.Uint64(), nil
	case uint64:
		return t, nil
	case uint32:
		return uint64(t), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
