package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCairnError_Error(t *testing.T) {
	err := New(ErrCategoryCommit, CodeActivationFailed, "swap failed")
	got := err.Error()
	if !strings.Contains(got, "COMMIT") || !strings.Contains(got, "ACTIVATION_FAILED") {
		t.Errorf("error string missing category or code: %q", got)
	}
	if !strings.Contains(got, "swap failed") {
		t.Errorf("error string missing message: %q", got)
	}
}

func TestCairnError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("rename: permission denied")
	err := Wrap(ErrCategoryStatusLog, CodeStagingIO, "could not stage log", cause)
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("error string missing cause: %q", err.Error())
	}
}

func TestCairnError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(ErrCategoryStorage, CodeUploadFailed, "upload failed", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is does not reach the cause")
	}
}

func TestCairnError_Is(t *testing.T) {
	a := New(ErrCategoryCatalog, CodeTableNotFound, "sales.fact not found")
	b := New(ErrCategoryCatalog, CodeTableNotFound, "different message")
	c := New(ErrCategoryCatalog, CodeTableExists, "sales.fact exists")

	if !errors.Is(a, b) {
		t.Error("errors with same category and code must match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes must not match")
	}
}

func TestCairnError_WithDetails(t *testing.T) {
	base := New(ErrCategoryValidation, CodePreconditionRejected, "rejected")
	detailed := base.WithDetails(map[string]interface{}{"table": "sales.fact"})

	if detailed.Details["table"] != "sales.fact" {
		t.Errorf("details not attached: %+v", detailed.Details)
	}
	if base.Details != nil {
		t.Error("WithDetails must not mutate the original error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		code     string
		want     bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryCommit, CodeActivationFailed, false},
		{ErrCategoryCommit, CodeRollbackIO, false},
		{ErrCategoryValidation, CodePreconditionRejected, false},
	}
	for _, tt := range tests {
		err := New(tt.category, tt.code, "x")
		if got := IsRetryable(err); got != tt.want {
			t.Errorf("IsRetryable(%s:%s) = %v, want %v", tt.category, tt.code, got, tt.want)
		}
	}

	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	inner := New(ErrCategoryStatusLog, CodeCorruptionDetected, "bad checksum")
	wrapped := fmt.Errorf("reading log: %w", inner)

	if got := GetCategory(wrapped); got != ErrCategoryStatusLog {
		t.Errorf("GetCategory = %q, want %q", got, ErrCategoryStatusLog)
	}
	if got := GetCode(wrapped); got != CodeCorruptionDetected {
		t.Errorf("GetCode = %q, want %q", got, CodeCorruptionDetected)
	}

	if got := GetCode(fmt.Errorf("plain")); got != "" {
		t.Errorf("GetCode on plain error = %q, want empty", got)
	}
}
