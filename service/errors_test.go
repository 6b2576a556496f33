package service

import (
	"context"
	"fmt"
	"net/url"
	"testing"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestTemporaryCode(t *testing.T) {
	for _, status := range []int{429, 500, 502, 503} {
		if !TemporaryCode(status) {
			t.Errorf("expecting status %d to be temporary", status)
		}
	}
	for _, status := range []int{200, 400, 401, 404} {
		if TemporaryCode(status) {
			t.Errorf("expecting status %d to be permanent", status)
		}
	}
}

func TestMergeErrors(t *testing.T) {
	tmpErr := MakeTemporary(fmt.Errorf("temporary"))
	fatalErr := fmt.Errorf("fatal")

	if err := MergeErrors(false, tmpErr, nil); err != nil {
		t.Errorf("expecting nil, got %v", err)
	}
	if err := MergeErrors(false, fatalErr, tmpErr); !Temporary(err) {
		t.Errorf("expecting temporary error, got %v", err)
	}
	if err := MergeErrors(true, tmpErr, fatalErr); Temporary(err) {
		t.Errorf("expecting fatal error, got %v", err)
	}
	if err := MergeErrors(true, nil, nil, fatalErr); err == nil || Temporary(err) {
		t.Errorf("expecting fatal error, got %v", err)
	}
}
