package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRetriable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"breaker open", &OpenError{Dependency: "llm-primary", State: BreakerOpen}, true},
		{"wrapped breaker open", fmt.Errorf("invoke: %w", &OpenError{Dependency: "llm-primary", State: BreakerOpen}), true},
		{"timeout message", errors.New("request timed out after 30s"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("provider returned 429 too many requests"), true},
		{"server error", errors.New("provider returned 503 service unavailable"), true},
		{"timeout with embedded digits", errors.New("request timed out after 4000ms"), true},
		{"code inside larger number", errors.New("upstream id 15003 rejected"), false},
		{"bad request", errors.New("provider returned 400 bad request"), false},
		{"auth failure", errors.New("401 invalid api key"), false},
		{"not found", errors.New("404 model not found"), false},
		{"unknown", errors.New("something odd happened"), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Retriable(tc.err); got != tc.want {
				t.Fatalf("Retriable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
