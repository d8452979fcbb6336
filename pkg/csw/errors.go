package csw

import (
	"errors"
	"fmt"
)

var (
	// ErrException is wrapped by every ExceptionError
	ErrException = errors.New("csw exception report")
	// ErrMalformedResponse is returned when a response is not a GetRecords result
	ErrMalformedResponse = errors.New("malformed GetRecords response")
)

// ExceptionError is an OWS exception report returned by the endpoint in place of results
type ExceptionError struct {
	Code    string
	Locator string
	Text    string
}

func (e *ExceptionError) Error() string {
	msg := ErrException.Error()
	if e.Code != "" {
		msg += fmt.Sprintf(" (%s", e.Code)
		if e.Locator != "" {
			msg += " at " + e.Locator
		}
		msg += ")"
	}
	if e.Text != "" {
		msg += ": " + e.Text
	}
	return msg
}

func (e *ExceptionError) Unwrap() error {
	return ErrException
}

// StatusError is returned for non-200 responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}
