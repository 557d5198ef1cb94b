package execution

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"
)

func fastOpts(attempts int) PollOptions {
	return PollOptions{MaxAttempts: attempts, Interval: time.Millisecond}
}

func TestAwaitTerminalConfirms(t *testing.T) {
	calls := 0
	query := func(ctx context.Context) (Status, error) {
		calls++
		if calls < 3 {
			return Status{State: StatePending}, nil
		}
		return Status{State: StateConfirmed, TxHash: "0xabc", BlockNumber: big.NewInt(42)}, nil
	}
	status, err := AwaitTerminal(context.Background(), query, fastOpts(5))
	if err != nil {
		t.Fatalf("AwaitTerminal failed: %v", err)
	}
	if status.State != StateConfirmed {
		t.Fatalf("state = %s, want confirmed", status.State)
	}
	if calls != 3 {
		t.Fatalf("queried %d times, want 3 (stop at first terminal)", calls)
	}
}

func TestAwaitTerminalExpiresOnBudget(t *testing.T) {
	calls := 0
	query := func(ctx context.Context) (Status, error) {
		calls++
		return Status{State: StatePending, TxHash: "0xabc"}, nil
	}
	status, err := AwaitTerminal(context.Background(), query, fastOpts(3))
	if err != nil {
		t.Fatalf("budget exhaustion is not an error: %v", err)
	}
	if status.State != StateExpired {
		t.Fatalf("state = %s, want expired", status.State)
	}
	if status.TxHash != "0xabc" {
		t.Fatal("expired status must keep the last observed snapshot")
	}
	if calls != 3 {
		t.Fatalf("queried %d times, want exactly the budget", calls)
	}
}

func TestAwaitTerminalErrorsConsumeAttempts(t *testing.T) {
	calls := 0
	query := func(ctx context.Context) (Status, error) {
		calls++
		return Status{}, errors.New("rpc hiccup")
	}
	status, err := AwaitTerminal(context.Background(), query, fastOpts(2))
	if err != nil {
		t.Fatalf("transient errors must not abort: %v", err)
	}
	if status.State != StateExpired {
		t.Fatalf("state = %s, want expired", status.State)
	}
	if calls != 2 {
		t.Fatalf("queried %d times, want 2", calls)
	}
}

func TestAwaitTerminalFailedIsTerminal(t *testing.T) {
	query := func(ctx context.Context) (Status, error) {
		return Status{State: StateFailed, Reason: "reverted"}, nil
	}
	status, err := AwaitTerminal(context.Background(), query, fastOpts(5))
	if err != nil {
		t.Fatalf("AwaitTerminal failed: %v", err)
	}
	if status.State != StateFailed || status.Reason != "reverted" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAwaitTerminalHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	query := func(ctx context.Context) (Status, error) {
		calls++
		cancel()
		return Status{State: StatePending}, nil
	}
	_, err := AwaitTerminal(ctx, query, PollOptions{MaxAttempts: 10, Interval: time.Minute})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 1 {
		t.Fatalf("queried %d times, want 1 before the cancelled wait", calls)
	}
}

func TestTaskStateTerminal(t *testing.T) {
	if StatePending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
	for _, st := range []TaskState{StateConfirmed, StateFailed, StateExpired} {
		if !st.Terminal() {
			t.Fatalf("%s must be terminal", st)
		}
	}
}
