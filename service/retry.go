package service

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn up to attempts times, sleeping delay between two tries.
// Only errors classified as Temporary are retried; any other error is returned
// immediately. When the attempts are exhausted, the last transient error is
// returned. Cancelling ctx aborts the wait and returns ctx.Err().
func Retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("retry: attempts must be >= 1")
	}
	var err error
	for i := 1; ; i++ {
		if err = fn(); err == nil || !Temporary(err) {
			return err
		}
		if errCtx := ctx.Err(); errCtx != nil {
			return errCtx
		}
		if i == attempts {
			return err
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
