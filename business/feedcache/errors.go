package feedcache

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/OpenTransitTools/transittrack/foundation/httpclient"
)

// FeedErrorKind classifies upstream feed failures
type FeedErrorKind int

const (
	// RateLimited upstream answered 429
	RateLimited FeedErrorKind = iota + 1
	// Gateway upstream answered with a server error or another unexpected status
	Gateway
	// Network the request did not complete
	Network
	// BadRequest upstream rejected the request
	BadRequest
	// Malformed the response was not a GTFS-realtime feed
	Malformed
)

// String returns the kind as used in logs and metric labels
func (k FeedErrorKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Gateway:
		return "gateway"
	case Network:
		return "network"
	case BadRequest:
		return "bad_request"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

var (
	// ErrRateLimited matches a *FeedError of kind RateLimited with errors.Is
	ErrRateLimited = errors.New("realtime feed rate limited")
	// ErrGateway matches a *FeedError of kind Gateway with errors.Is
	ErrGateway = errors.New("realtime feed gateway failure")
)

// FeedError is returned when the realtime feed could not be retrieved or decoded
type FeedError struct {
	Kind       FeedErrorKind
	StatusCode int
	Err        error
}

func (e *FeedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("realtime feed %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("realtime feed %s: %v", e.Kind, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

func (e *FeedError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == RateLimited
	case ErrGateway:
		return e.Kind == Gateway
	}
	return false
}

// Retryable is true for failures that may succeed if tried again later
func (e *FeedError) Retryable() bool {
	return e.Kind == RateLimited || e.Kind == Gateway || e.Kind == Network
}

// classifyFetchError converts an error from httpclient into a *FeedError
func classifyFetchError(err error) *FeedError {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return &FeedError{Kind: Network, Err: err}
	}
	feedErr := &FeedError{StatusCode: statusErr.StatusCode, Err: err}
	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		feedErr.Kind = RateLimited
	case statusErr.StatusCode >= 400 && statusErr.StatusCode < 500:
		feedErr.Kind = BadRequest
	default:
		feedErr.Kind = Gateway
	}
	return feedErr
}
