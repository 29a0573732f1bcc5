package remote

import (
	"errors"
	"fmt"
)

// ErrBodyTooLarge means the response body exceeded the client's limit.
var ErrBodyTooLarge = errors.New("response body too large")

// TransportError is a network-level failure: the request never produced an
// HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport returns true if err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
