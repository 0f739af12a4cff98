package models

import (
	"errors"
	"testing"
)

func TestFlowError(t *testing.T) {
	baseErr := errors.New("something went wrong")
	flowErr := &FlowError{
		FlowID:    123,
		Operation: "create",
		Err:       baseErr,
	}

	expectedMsg := "flow 123 create: something went wrong"
	if flowErr.Error() != expectedMsg {
		t.Errorf("Error() = %s, want %s", flowErr.Error(), expectedMsg)
	}

	if unwrapped := flowErr.Unwrap(); unwrapped != baseErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, baseErr)
	}

	if !errors.Is(flowErr, baseErr) {
		t.Error("errors.Is() should return true for wrapped error")
	}
}

func TestRunError(t *testing.T) {
	baseErr := errors.New("run failed")
	nodeID := int64(456)

	tests := []struct {
		name        string
		runErr      *RunError
		expectedMsg string
	}{
		{
			name:        "with node ID",
			runErr:      &RunError{FlowID: 123, NodeID: &nodeID, Err: baseErr},
			expectedMsg: "run 123 node 456: run failed",
		},
		{
			name:        "without node ID",
			runErr:      &RunError{FlowID: 123, Err: baseErr},
			expectedMsg: "run 123: run failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.runErr.Error() != tt.expectedMsg {
				t.Errorf("Error() = %s, want %s", tt.runErr.Error(), tt.expectedMsg)
			}
			if unwrapped := tt.runErr.Unwrap(); unwrapped != baseErr {
				t.Errorf("Unwrap() = %v, want %v", unwrapped, baseErr)
			}
			if !errors.Is(tt.runErr, baseErr) {
				t.Error("errors.Is() should return true for wrapped error")
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	valErr := &ValidationError{
		Field:   "name",
		Message: "name is required",
	}

	expectedMsg := "name: name is required"
	if valErr.Error() != expectedMsg {
		t.Errorf("Error() = %s, want %s", valErr.Error(), expectedMsg)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name        string
		errors      ValidationErrors
		expectedMsg string
	}{
		{
			name: "single error",
			errors: ValidationErrors{
				{Field: "name", Message: "name is required"},
			},
			expectedMsg: "name: name is required",
		},
		{
			name: "multiple errors",
			errors: ValidationErrors{
				{Field: "name", Message: "name is required"},
				{Field: "type", Message: "type is invalid"},
			},
			expectedMsg: "name: name is required",
		},
		{
			name:        "no errors",
			errors:      ValidationErrors{},
			expectedMsg: "validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.errors.Error() != tt.expectedMsg {
				t.Errorf("Error() = %s, want %s", tt.errors.Error(), tt.expectedMsg)
			}
		})
	}
}

func TestCommonErrors(t *testing.T) {
	commonErrors := []error{
		ErrClientClosed,
		ErrInvalidFlowID,
		ErrFlowNotFound,
		ErrFlowExists,
		ErrInvalidFlow,
		ErrNodeNotFound,
		ErrEdgeNotFound,
		ErrInvalidEdge,
		ErrInvalidRunID,
		ErrRunNotFound,
		ErrRunFailed,
		ErrRunCancelled,
		ErrRunTimeout,
		ErrNodeExecutionFailed,
		ErrInvalidInput,
		ErrInvalidOutput,
		ErrExecutorNotFound,
		ErrExecutorFailed,
		ErrInvalidConfig,
		ErrValidationFailed,
		ErrRequired,
	}

	for _, err := range commonErrors {
		if err == nil {
			t.Error("common error is nil")
		}
		if err.Error() == "" {
			t.Error("common error has empty message")
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	flowErr := &FlowError{
		FlowID:    123,
		Operation: "get",
		Err:       ErrFlowNotFound,
	}

	if !errors.Is(flowErr, ErrFlowNotFound) {
		t.Error("errors.Is() should work with FlowError")
	}

	runErr := &RunError{
		FlowID: 123,
		Err:    ErrRunFailed,
	}

	if !errors.Is(runErr, ErrRunFailed) {
		t.Error("errors.Is() should work with RunError")
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"client closed", ErrClientClosed, "client is closed"},
		{"flow not found", ErrFlowNotFound, "flow not found"},
		{"node not found", ErrNodeNotFound, "node not found"},
		{"edge not found", ErrEdgeNotFound, "edge not found"},
		{"run failed", ErrRunFailed, "run failed"},
		{"executor not found", ErrExecutorNotFound, "executor not found"},
		{"validation failed", ErrValidationFailed, "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Error message = %s, want %s", tt.err.Error(), tt.expected)
			}
		})
	}
}
