package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"exit 2 with message", cli.Exit("url required", 2), 2, "url required"},
		{"exit 1 with message", cli.Exit("listen failed", 1), 1, "listen failed"},
		{"wrapped exit coder", errors.Join(errors.New("context"), cli.Exit("inner", 42)), 42, "inner"},
		{"regular error", errors.New("boom"), 1, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := exitStatus(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestExitStatus_EmptyMessage(t *testing.T) {
	code, msg := exitStatus(cli.Exit("", 3))
	if code != 3 {
		t.Errorf("code = %d, want 3", code)
	}
	if msg != "" {
		t.Errorf("msg = %q, want empty", msg)
	}
}

func TestExitErrHandler_NilError(_ *testing.T) {
	exitErrHandler(nil, nil)
}
