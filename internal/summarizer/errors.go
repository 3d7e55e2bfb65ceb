package summarizer

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a classified summarization failure. Transient failures may be
// retried; permanent ones are returned after the first attempt.
type Error struct {
	Reason    string
	Transient bool
	// Attempts is the number of calls made before giving up. Zero means the
	// input was rejected before any call.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}

	msg := fmt.Sprintf("summarize (%s, attempts = %d): %s", kind, e.Attempts, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth another attempt. Errors that are
// not classified (network failures and the like) are transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient
	}

	return err != nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusConflict,
		http.StatusTooEarly,
		http.StatusTooManyRequests:
		return true
	}

	return code >= http.StatusInternalServerError
}
