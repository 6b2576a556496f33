package service

import (
	"context"
	"fmt"
	"testing"
)

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 5, 0, func() error {
		calls++
		if calls < 3 {
			return MakeTemporary(fmt.Errorf("transient"))
		}
		return nil
	})
	if err != nil {
		t.Errorf("expecting success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expecting 3 calls, got %d", calls)
	}
}

func TestRetryExhaustion(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 300, 0, func() error {
		calls++
		return MakeTemporary(fmt.Errorf("transient"))
	})
	if err == nil || !Temporary(err) {
		t.Errorf("expecting the last transient error, got %v", err)
	}
	if calls != 300 {
		t.Errorf("expecting exactly 300 calls, got %d", calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	calls := 0
	permanent := fmt.Errorf("permanent")
	err := Retry(context.Background(), 5, 0, func() error {
		calls++
		return permanent
	})
	if err != permanent {
		t.Errorf("expecting %v, got %v", permanent, err)
	}
	if calls != 1 {
		t.Errorf("expecting 1 call, got %d", calls)
	}
}

func TestRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 5, 0, func() error {
		return MakeTemporary(fmt.Errorf("transient"))
	})
	if err != context.Canceled {
		t.Errorf("expecting context.Canceled, got %v", err)
	}
}
