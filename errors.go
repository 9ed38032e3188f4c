package chainprobe

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/hedeqiang/chainprobe/subscriber"
)

var (
	// ErrClosed is returned when operating on a closed Probe.
	ErrClosed = errors.New("chainprobe: probe closed")

	// ErrStorageNotFound is returned when the node holds no value under a storage key.
	ErrStorageNotFound = errors.New("chainprobe: storage value not found")

	// ErrInvalidStorageKey is returned for an empty storage key.
	ErrInvalidStorageKey = errors.New("chainprobe: invalid storage key")

	// ErrUnsupportedScheme is returned for endpoints that are not ws, wss, http or https.
	ErrUnsupportedScheme = errors.New("chainprobe: unsupported endpoint scheme")

	// ErrNilHandler is returned when subscribing without a header callback.
	ErrNilHandler = errors.New("chainprobe: nil header handler")

	// ErrInvalidLimit is returned for a header sample size below one.
	ErrInvalidLimit = subscriber.ErrInvalidLimit
)

// ConnectionError reports that the endpoint could not be reached or the
// handshake failed.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("chainprobe: connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RequestError reports a failed request: a timeout, a node error reply or
// a malformed response.
type RequestError struct {
	Method string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("chainprobe: %s: %v", e.Method, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// SubscriptionError reports that a live push stream was interrupted.
type SubscriptionError struct {
	Method string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("chainprobe: subscription %s: %v", e.Method, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}
