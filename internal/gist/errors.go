package gist

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReference = errors.New("invalid script path")
	ErrNotFound         = errors.New("script not found")
	ErrMalformedListing = errors.New("malformed gist listing")
)

// NotFoundError reports that no file in the searched listing pages matched.
type NotFoundError struct {
	Username string
	Filename string
	Pages    int
}

func (e *NotFoundError) Error() string {
	pages := "page"
	if e.Pages != 1 {
		pages = "pages"
	}
	return fmt.Sprintf("no file matching %q in %s's gists (searched %d %s)", e.Filename, e.Username, e.Pages, pages)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StatusError is a non-2xx response from the gist API or a raw file URL.
type StatusError struct {
	URL    string
	Status int
	Reason string
	// Message is GitHub's JSON "message" field, when present.
	Message string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("GET %s: %d %s", e.URL, e.Status, e.Reason)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IsNotFound returns true if no gist file matched.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
