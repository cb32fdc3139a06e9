package provider

import (
	"strings"
	"time"
)

// RetryConfig bounds the retry behavior of provider calls.
type RetryConfig struct {
	MaxAttempts     int           // total attempts per call
	InitialInterval time.Duration // first backoff wait
	MaxInterval     time.Duration // backoff ceiling
	RotationDelay   time.Duration // wait after rotating credentials
}

// DefaultRetryConfig returns the production retry bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		RotationDelay:   time.Second,
	}
}

// errorClass drives how a failed provider call is retried.
type errorClass int

const (
	// classFatal errors are not retried.
	classFatal errorClass = iota
	// classQuota errors rotate to the next credential before retrying.
	classQuota
	// classTransient errors retry on the same credential after backoff.
	classTransient
)

// Pattern groups matched case-insensitively against err.Error().
// String matching is used because provider SDKs do not expose typed
// errors for quota or availability failures.
var (
	quotaPatterns     = []string{"rate limit", "quota", "429", "too many requests", "resource exhausted"}
	transientPatterns = []string{"500", "502", "503", "504", "unavailable", "internal error", "timeout", "connection reset", "temporary"}
)

// classify maps a provider error to its retry class.
func classify(err error) errorClass {
	if err == nil {
		return classFatal
	}
	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return classQuota
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return classTransient
		}
	}
	return classFatal
}
