package execution

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TaskState classifies a submitted task. Confirmed, Failed and Expired are
// terminal; Expired means the polling budget ran out while the task was still
// pending, which is ambiguous and must be re-checked out of band rather than
// treated as failure.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateConfirmed TaskState = "confirmed"
	StateFailed    TaskState = "failed"
	StateExpired   TaskState = "expired"
)

func (s TaskState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateExpired
}

// TaskKind records which submission path produced a handle.
type TaskKind string

const (
	KindTransaction TaskKind = "transaction"
	KindRelayTask   TaskKind = "relay_task"
)

// Call is one prepared contract invocation.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Handle identifies a submitted task. Immutable once issued: the ID is a
// transaction hash for direct submissions or a relay task id.
type Handle struct {
	Kind TaskKind
	ID   string
}

// Status is one observed snapshot of a task.
type Status struct {
	State       TaskState
	TxHash      string
	BlockNumber *big.Int
	Reason      string
}

// TaskRecord is the persisted trace of one submitted task, kept so an
// operator can reconcile ambiguous outcomes manually.
type TaskRecord struct {
	TaskID      string `json:"task_id"`
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	ChainID     int64  `json:"chain_id"`
	Owner       string `json:"owner"`
	Target      string `json:"target"`
	Data        string `json:"data"`
	Value       string `json:"value"`
	State       string `json:"state"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func NewTaskRecord(handle Handle, path string, chainID int64, owner string, call Call) TaskRecord {
	now := time.Now().UTC().Format(time.RFC3339)
	value := "0"
	if call.Value != nil {
		value = call.Value.String()
	}
	return TaskRecord{
		TaskID:    handle.ID,
		Kind:      string(handle.Kind),
		Path:      path,
		ChainID:   chainID,
		Owner:     owner,
		Target:    call.To.Hex(),
		Data:      "0x" + common.Bytes2Hex(call.Data),
		Value:     value,
		State:     string(StatePending),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *TaskRecord) Apply(status Status) {
	r.State = string(status.State)
	if status.TxHash != "" {
		r.TxHash = status.TxHash
	}
	if status.BlockNumber != nil {
		r.BlockNumber = status.BlockNumber.String()
	}
	r.Reason = status.Reason
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
