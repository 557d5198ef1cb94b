package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// AmountInfo reports a quantity in both base units and decimal form.
type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// AllowanceReport is the observed state of both allowance layers for an owner.
type AllowanceReport struct {
	ChainID            int64  `json:"chain_id"`
	Owner              string `json:"owner"`
	Token              string `json:"token"`
	TokenSpender       string `json:"token_spender"`
	TokenAllowance     string `json:"token_allowance"`
	DelegateSpender    string `json:"delegate_spender"`
	DelegateAllowance  string `json:"delegate_allowance"`
	DelegateExpiration uint64 `json:"delegate_expiration"`
	DelegateNonce      uint64 `json:"delegate_nonce"`
	TokenApprovalNeed  bool   `json:"token_approval_needed"`
	DelegateNeed       bool   `json:"delegate_approval_needed"`
	FetchedAt          string `json:"fetched_at"`
}

// SwapPlan is the read-only preview of a direct swap: resolved parameters
// plus the allowance work it would trigger.
type SwapPlan struct {
	ChainID    int64           `json:"chain_id"`
	Owner      string          `json:"owner"`
	TokenIn    string          `json:"token_in"`
	TokenOut   string          `json:"token_out"`
	FeeTier    uint32          `json:"fee_tier"`
	Router     string          `json:"router"`
	AmountIn   AmountInfo      `json:"amount_in"`
	Allowances AllowanceReport `json:"allowances"`
	Deadline   string          `json:"deadline"`
}

// SwapReport is emitted after a swap attempt reaches a terminal state.
type SwapReport struct {
	TaskID        string     `json:"task_id"`
	Path          string     `json:"path"`
	ChainID       int64      `json:"chain_id"`
	Owner         string     `json:"owner"`
	Token         string     `json:"token"`
	AmountIn      AmountInfo `json:"amount_in"`
	MinimumOut    string     `json:"minimum_out"`
	MaxFee        string     `json:"max_fee,omitempty"`
	Approvals     []string   `json:"approvals,omitempty"`
	TxHash        string     `json:"tx_hash,omitempty"`
	BlockNumber   string     `json:"block_number,omitempty"`
	Status        string     `json:"status"`
	LastKnown     string     `json:"last_known_status,omitempty"`
	SubmittedAt   string     `json:"submitted_at,omitempty"`
	CompletedAt   string     `json:"completed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}
