package hedge

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSagaError_Error(t *testing.T) {
	err := &SagaError{
		Kind:       FailureOpening,
		PositionID: "P-0001",
		Ticker:     "BTC",
		Message:    "leg open failed",
	}

	msg := err.Error()
	if !strings.Contains(msg, "OPENING_FAILURE") || !strings.Contains(msg, "P-0001") {
		t.Errorf("error message missing parts: %q", msg)
	}
}

func TestSagaError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &SagaError{Kind: FailureClosing, Message: "close failed", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("SagaError must unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("wrapped cause missing from message: %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"direct", &SagaError{Kind: FailureValidation}, FailureValidation},
		{"wrapped", fmt.Errorf("sweep: %w", &SagaError{Kind: FailureManual}), FailureManual},
		{"foreign", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNeedsManualCheck(t *testing.T) {
	if !NeedsManualCheck(&SagaError{Kind: FailureManual}) {
		t.Error("MANUAL_INTERVENTION must require a manual check")
	}
	if NeedsManualCheck(&SagaError{Kind: FailureOpening}) {
		t.Error("OPENING_FAILURE is recoverable")
	}
	if NeedsManualCheck(errors.New("plain")) {
		t.Error("foreign errors never require a manual check")
	}
}
