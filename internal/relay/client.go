package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/kbizikav/gasless-gas-station/internal/errors"
	"github.com/kbizikav/gasless-gas-station/internal/execution"
	"github.com/kbizikav/gasless-gas-station/internal/httpx"
	"github.com/kbizikav/gasless-gas-station/internal/registry"
)

const defaultBase = "https://api.gelato.digital"

// Client talks to the gas-sponsoring relay: fee oracle, syncFee submission and
// task status. The relay fronts gas and recoups it through an on-chain fee
// deduction bounded by the caller's ceiling.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, apiKey string) *Client {
	return &Client{http: httpClient, baseURL: defaultBase, apiKey: apiKey}
}

// WithBaseURL overrides the relay endpoint; used by tests.
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type feeEstimateResponse struct {
	EstimatedFee string `json:"estimatedFee"`
}

// EstimateFee quotes the native-denominated fee for relaying a call with the
// given gas limit. The quote is an input to the fee ceiling, never the
// ceiling itself.
func (c *Client) EstimateFee(ctx context.Context, chainID int64, gasLimit uint64, highPriority bool) (*big.Int, error) {
	q := url.Values{}
	q.Set("paymentToken", registry.NativeTokenSentinel.Hex())
	q.Set("gasLimit", fmt.Sprintf("%d", gasLimit))
	q.Set("isHighPriority", fmt.Sprintf("%t", highPriority))

	var resp feeEstimateResponse
	endpoint := fmt.Sprintf("%s/oracles/%d/estimate?%s", c.baseURL, chainID, q.Encode())
	if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	fee, ok := new(big.Int).SetString(strings.TrimSpace(resp.EstimatedFee), 10)
	if !ok || fee.Sign() < 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "relay fee oracle returned a non-numeric estimate")
	}
	return fee, nil
}

type syncFeeRequest struct {
	ChainID        int64  `json:"chainId"`
	Target         string `json:"target"`
	Data           string `json:"data"`
	FeeToken       string `json:"feeToken"`
	IsRelayContext bool   `json:"isRelayContext"`
	SponsorAPIKey  string `json:"sponsorApiKey,omitempty"`
	Retries        *int   `json:"retries,omitempty"`
}

type syncFeeResponse struct {
	TaskID string `json:"taskId"`
}

// CallWithSyncFee enqueues one relayed call paying its fee in native currency.
// One network write; an ambiguous failure is surfaced, not retried, since a
// duplicate enqueue would double-spend the permit nonce carried in data.
func (c *Client) CallWithSyncFee(ctx context.Context, chainID int64, target common.Address, data []byte) (execution.Handle, error) {
	noRetries := 0
	req := syncFeeRequest{
		ChainID:        chainID,
		Target:         target.Hex(),
		Data:           "0x" + common.Bytes2Hex(data),
		FeeToken:       registry.NativeTokenSentinel.Hex(),
		IsRelayContext: true,
		SponsorAPIKey:  c.apiKey,
		Retries:        &noRetries,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return execution.Handle{}, clierr.Wrap(clierr.CodeInternal, "marshal relay request", err)
	}
	var resp syncFeeResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/relays/v2/call-with-sync-fee", body, nil, &resp); err != nil {
		return execution.Handle{}, err
	}
	if strings.TrimSpace(resp.TaskID) == "" {
		return execution.Handle{}, clierr.New(clierr.CodeUnavailable, "relay accepted call without returning a task id")
	}
	return execution.Handle{Kind: execution.KindRelayTask, ID: resp.TaskID}, nil
}

type taskStatusResponse struct {
	Task struct {
		TaskID          string `json:"taskId"`
		TaskState       string `json:"taskState"`
		TransactionHash string `json:"transactionHash"`
		BlockNumber     int64  `json:"blockNumber"`
		LastCheckMsg    string `json:"lastCheckMessage"`
	} `json:"task"`
}

// TaskStatus maps one relay task snapshot into the shared status model.
func (c *Client) TaskStatus(ctx context.Context, handle execution.Handle) (execution.Status, error) {
	var resp taskStatusResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/tasks/status/"+url.PathEscape(handle.ID), &resp); err != nil {
		return execution.Status{}, err
	}

	status := execution.Status{TxHash: resp.Task.TransactionHash}
	if resp.Task.BlockNumber > 0 {
		status.BlockNumber = big.NewInt(resp.Task.BlockNumber)
	}
	switch resp.Task.TaskState {
	case "ExecSuccess":
		status.State = execution.StateConfirmed
	case "ExecReverted", "Cancelled":
		status.State = execution.StateFailed
		status.Reason = resp.Task.LastCheckMsg
		if status.Reason == "" {
			status.Reason = "relay task " + resp.Task.TaskState
		}
	case "CheckPending", "ExecPending", "WaitingForConfirmation", "":
		status.State = execution.StatePending
	default:
		// Unknown states stay pending so the budget, not a guess, decides.
		status.State = execution.StatePending
	}
	return status, nil
}

// StatusQuery returns a StatusFunc for AwaitTerminal.
func (c *Client) StatusQuery(handle execution.Handle) execution.StatusFunc {
	return func(ctx context.Context) (execution.Status, error) {
		return c.TaskStatus(ctx, handle)
	}
}
