package bitable

import (
	"errors"
	"fmt"
)

// ErrAuth is returned when the tenant access token could not be acquired.
// Every privileged operation treats a missing token as a hard precondition
// failure.
var ErrAuth = errors.New("acquiring tenant access token failed")

// ErrDuplicate is returned by Save when the URL is already present.
var ErrDuplicate = errors.New("bookmark URL already exists")

// ErrValidation is returned by Save when title or URL is empty.
var ErrValidation = errors.New("bookmark title and URL must not be empty")

// RequestError reports a failed backend call: a non-success HTTP status, or
// a non-zero code in an HTTP-successful response.
type RequestError struct {
	Op     string
	Status int
	Code   int
	Msg    string
}

func (e *RequestError) Error() string {
	if e.Code != 0 {
		if e.Msg != "" {
			return fmt.Sprintf("%s: backend code %d: %s", e.Op, e.Code, e.Msg)
		}
		return fmt.Sprintf("%s: backend code %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}
