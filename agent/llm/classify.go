package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/openai/openai-go"
)

// Retriable reports whether a provider error is worth a failover attempt.
// Transient transport faults, rate limits and provider-side 5xx responses
// are retriable; client mistakes (4xx other than 429) are not. Breaker
// rejections are retriable so the router can try the fallback provider.
func Retriable(err error) bool {
	if err == nil {
		return false
	}

	var openErr *OpenError
	if errors.As(err, &openErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		case apiErr.StatusCode >= 400:
			return false
		}
	}

	return retriableByMessage(err.Error())
}

// retriableByMessage is a last-resort heuristic for wrapped errors that lost
// their type on the way up. Transport wording is checked before status codes
// so "timed out after 4000ms" is never read as a 400.
func retriableByMessage(msg string) bool {
	msg = strings.ToLower(msg)

	for _, marker := range []string{
		"timeout", "timed out", "connection refused", "connection reset",
		"network", "temporarily unavailable", "rate limit", "overloaded",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	for _, code := range []string{"429", "500", "502", "503", "504"} {
		if containsCode(msg, code) {
			return true
		}
	}
	return false
}

// containsCode reports whether msg carries code as a standalone number, not
// as digits inside a larger one.
func containsCode(msg, code string) bool {
	for i := 0; ; i++ {
		j := strings.Index(msg[i:], code)
		if j < 0 {
			return false
		}
		i += j
		before := i == 0 || !isDigit(msg[i-1])
		after := i+len(code) == len(msg) || !isDigit(msg[i+len(code)])
		if before && after {
			return true
		}
	}
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
