package lode

import (
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
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"open /data/segments: permission denied", ErrPermissionDenied},
		{"open /tmp/file: no such file or directory", ErrNotFound},
		{"NoSuchKey: the key does not exist", ErrNotFound},
		{"write /data: no space left on device", ErrDiskFull},
		{"SlowDown: please reduce your request rate", ErrThrottled},
		{"NoCredentialProviders: no valid providers", ErrAuth},
		{"dial tcp 10.0.0.1:443: connection refused", ErrNetwork},
		{"something odd happened", ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			got := classifyError(errors.New(tt.errMsg))
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "opaque" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError_TypedTimeout(t *testing.T) {
	if got := classifyError(fmt.Errorf("wrapped: %w", timeoutErr{})); !errors.Is(got, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", got)
	}
}

func TestStorageError_Chain(t *testing.T) {
	cause := errors.New("open x: no such file or directory")
	err := WrapReadError(cause, "datasets/x/seg.ssef")

	if !IsNotFound(err) {
		t.Error("expected IsNotFound")
	}
	if !errors.Is(err, cause) {
		t.Error("underlying error lost from chain")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "read" || se.Path != "datasets/x/seg.ssef" {
		t.Errorf("unexpected StorageError: %#v", se)
	}
}

func TestWrap_NilAndIdempotent(t *testing.T) {
	if WrapWriteError(nil, "p") != nil {
		t.Error("nil error must stay nil")
	}
	first := WrapWriteError(errors.New("disk full"), "p")
	if again := WrapReadError(first, "q"); again != first {
		t.Error("an already classified error must not be wrapped twice")
	}
}
