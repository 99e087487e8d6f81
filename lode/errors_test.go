package lode

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		errMsg   string
		wantKind error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"operation timed out", ErrTimeout},
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"open /data/out: permission denied", ErrPermissionDenied},
		{"open /tmp/file: EACCES", ErrPermissionDenied},
		{"open /x: no such file or directory", ErrNotFound},
		{"NoSuchBucket: the bucket does not exist", ErrNotFound},
		{"write: no space left on device", ErrDiskFull},
		{"SlowDown: please reduce your request rate", ErrThrottled},
		{"status 429", ErrThrottled},
		{"NoCredentialProviders: no valid providers in chain", ErrAuth},
		{"ExpiredToken: the token has expired", ErrAuth},
		{"dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"something odd", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			if got := classifyError(errors.New(tt.errMsg)); got != tt.wantKind {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "weird" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError_TimeoutInterface(t *testing.T) {
	if got := classifyError(fmt.Errorf("wrapped: %w", timeoutErr{})); got != ErrTimeout {
		t.Errorf("got %v, want ErrTimeout", got)
	}
}

func TestStorageError_Chain(t *testing.T) {
	err := WrapWriteError(context.DeadlineExceeded, "stitcher/events")

	if !errors.Is(err, ErrTimeout) {
		t.Error("errors.Is should match the kind sentinel")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should reach the underlying error")
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
	if IsRetryable(WrapWriteError(errors.New("permission denied"), "")) {
		t.Error("permission errors should not be retryable")
	}

	want := "write stitcher/events: operation timed out: context deadline exceeded"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	// Wrapping twice keeps the first classification.
	again := WrapReadError(err, "other")
	var se *StorageError
	if !errors.As(again, &se) || se.Op != "write" {
		t.Errorf("rewrapped op = %v, want write", se)
	}

	if WrapWriteError(nil, "x") != nil || WrapReadError(nil, "x") != nil || WrapInitError(nil, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}
