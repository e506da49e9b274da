package watch

import (
	"errors"
	"strconv"
)

// ErrNoBookToken is returned when the provider's booking details carry no book token.
var ErrNoBookToken = errors.New("no booking token returned")

// ValidationError means the request was rejected before any task started.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "invalid watch request: " + e.Field + " " + e.Msg
}

// ProviderError wraps a failed availability or booking call. Poll-time
// provider errors are reported and retried on the next interval.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// NotifierError means the delivery channel rejected a message. The owning
// watch treats it as permanent.
type NotifierError struct {
	Err error
}

func (e *NotifierError) Error() string { return "notifier: " + e.Err.Error() }
func (e *NotifierError) Unwrap() error { return e.Err }

// BookingStage names the auto-book step that failed.
type BookingStage string

const (
	StageDetails BookingStage = "details"
	StageBook    BookingStage = "book"
)

// BookingError ends an auto-book attempt. The log entry stays in watching.
type BookingError struct {
	Stage BookingStage
	Err   error
}

func (e *BookingError) Error() string { return "booking " + string(e.Stage) + ": " + e.Err.Error() }
func (e *BookingError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotifier(err error) bool {
	var n *NotifierError
	return errors.As(err, &n)
}

func IsBooking(err error) bool {
	var b *BookingError
	return errors.As(err, &b)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
