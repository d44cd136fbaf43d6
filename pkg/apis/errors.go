package apis

import "fmt"

// Error is a failed call against an external API. Retriable marks faults
// that were the service's (timeouts, throttling, 5xx); caller mistakes
// (4xx) are not retriable.
type Error struct {
	Service   string
	Status    int
	Retriable bool
	msg       string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Service, e.msg, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.msg)
}

func newError(service, msg string, retriable bool) *Error {
	return &Error{Service: service, Retriable: retriable, msg: msg}
}

func statusError(service string, status int) *Error {
	return &Error{
		Service:   service,
		Status:    status,
		Retriable: status >= 500 || status == 429,
		msg:       "request failed",
	}
}

// IsRetriable reports whether err is an API error worth retrying later.
func IsRetriable(err error) bool {
	apiErr, ok := err.(*Error)
	return ok && apiErr.Retriable
}
