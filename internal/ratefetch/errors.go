// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratefetch

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimitExceeded is matched by every RateLimitError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrClosed is returned for requests that were pending when the fetcher
	// was closed, and for every Fetch after Close.
	ErrClosed = errors.New("fetcher closed")
)

// RateLimitError reports a request that kept receiving rate-limit responses
// until its retries ran out.
type RateLimitError struct {
	URL      string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s after %d attempts; try again later", e.URL, e.Attempts)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}
