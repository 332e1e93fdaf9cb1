package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestOperationErrorMessageShape(t *testing.T) {
	tests := []struct {
		name     string
		err      *OperationError
		expected string
	}{
		{
			name: "object store write with full context",
			err: &OperationError{
				Operation: "store artifact",
				Component: "objectstore",
				Resource:  "acme/2025/03/abcd1234.pdf",
				Cause:     fmt.Errorf("disk full"),
			},
			expected: "failed to store artifact, component: objectstore, resource: acme/2025/03/abcd1234.pdf, cause: disk full",
		},
		{
			name: "dropzone write without resource",
			err: &OperationError{
				Operation: "write export file",
				Component: "dropzone",
				Cause:     fmt.Errorf("permission denied"),
			},
			expected: "failed to write export file, component: dropzone, cause: permission denied",
		},
		{
			name: "embedding upsert without cause",
			err: &OperationError{
				Operation: "upsert product embedding",
				Component: "vectordb",
				Resource:  "INT-777",
			},
			expected: "failed to upsert product embedding, component: vectordb, resource: INT-777",
		},
		{
			name:     "operation only",
			err:      &OperationError{Operation: "poll acks"},
			expected: "failed to poll acks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestOperationErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("connection reset by peer")
	err := FailedToWithDetails("load draft", "database", "draft_order", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}

	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatal("errors.As should find the OperationError")
	}
	if opErr.Component != "database" {
		t.Errorf("Component = %q, want %q", opErr.Component, "database")
	}
}

func TestFailedTo(t *testing.T) {
	err := FailedTo("render export document", fmt.Errorf("nil draft"))

	expected := "failed to render export document, cause: nil draft"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestWrapf(t *testing.T) {
	t.Run("adds formatted context", func(t *testing.T) {
		cause := fmt.Errorf("no such file")
		err := Wrapf(cause, "reading ack file %s", "ack_sales_order_1.json")

		expected := "reading ack file ack_sales_order_1.json: no such file"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
		if !errors.Is(err, cause) {
			t.Error("wrapped error should unwrap to the cause")
		}
	})

	t.Run("nil in, nil out", func(t *testing.T) {
		if Wrapf(nil, "anything") != nil {
			t.Error("Wrapf(nil, ...) should be nil")
		}
	})
}

func TestDomainHelpers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "database",
			err:      DatabaseError("sum daily ai spend", fmt.Errorf("deadlock detected")),
			expected: "failed to sum daily ai spend, component: database, cause: deadlock detected",
		},
		{
			name:     "network",
			err:      NetworkError("reach embedding provider", "api.openai.com:443", fmt.Errorf("i/o timeout")),
			expected: "failed to reach embedding provider, component: network, resource: api.openai.com:443, cause: i/o timeout",
		},
		{
			name:     "validation",
			err:      ValidationError("qty", "must be greater than zero"),
			expected: "validation failed for field qty: must be greater than zero",
		},
		{
			name:     "configuration",
			err:      ConfigurationError("daily_budget_micros", "must not be negative"),
			expected: "configuration error for setting daily_budget_micros: must not be negative",
		},
		{
			name:     "timeout",
			err:      TimeoutError("waiting for vision extraction", "40s"),
			expected: "timeout while waiting for vision extraction after 40s",
		},
		{
			name:     "authentication",
			err:      AuthenticationError("provider rejected API key"),
			expected: "authentication failed: provider rejected API key",
		},
		{
			name:     "authorization",
			err:      AuthorizationError("approve", "draft order"),
			expected: "authorization failed: insufficient permissions to approve draft order",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	cause := fmt.Errorf("unexpected end of JSON input")
	err := ParseError("ack_sales_order_42.json", "JSON", cause)

	if !errors.Is(err, cause) {
		t.Error("parse error should unwrap to the cause")
	}
	expected := "failed to parse ack_sales_order_42.json as JSON, component: parser, cause: unexpected end of JSON input"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"llm timeout", fmt.Errorf("anthropic call timed out: timeout"), true},
		{"dropzone nfs hiccup", fmt.Errorf("write /srv/erp/in/x.json.tmp: broken pipe"), true},
		{"provider overload", fmt.Errorf("503 service unavailable"), true},
		{"db restart", fmt.Errorf("read tcp: connection refused"), true},
		{"transient dns", fmt.Errorf("temporary failure in name resolution"), true},
		{"bad api key", fmt.Errorf("401 invalid x-api-key"), false},
		{"schema violation", fmt.Errorf("line_no must run 1..n without gaps"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestChain(t *testing.T) {
	t.Run("all nil collapses to nil", func(t *testing.T) {
		if Chain(nil, nil) != nil {
			t.Error("Chain of nils should be nil")
		}
	})

	t.Run("single survivor passes through unchanged", func(t *testing.T) {
		only := fmt.Errorf("dropzone write failed")
		if Chain(nil, only, nil) != only {
			t.Error("single non-nil error should be returned as-is")
		}
	})

	t.Run("multiple errors summarize in order", func(t *testing.T) {
		err := Chain(
			fmt.Errorf("archive copy failed"),
			fmt.Errorf("dropzone write failed"),
		)
		expected := "multiple errors: archive copy failed; dropzone write failed"
		if err.Error() != expected {
			t.Errorf("Error() = %q, want %q", err.Error(), expected)
		}
	})
}
