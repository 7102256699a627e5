// Package errorsx extends the standard errors package with the handful of
// helpers the dht packages lean on.
package errorsx

import (
	"errors"
	"fmt"
	"log"
)

// String useful wrapper for turning string constants
// into errors that interopt well with stdlib functionality.
type String string

func (t String) Error() string {
	return string(t)
}

func New(msg string) error {
	return errors.New(msg)
}

func Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Wrap annotates the error with the message, nil errors remain nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Ignore returns nil when err matches any of the provided errors.
func Ignore(err error, ignore ...error) error {
	for _, i := range ignore {
		if errors.Is(err, i) {
			return nil
		}
	}

	return err
}

// Compact returns the first non-nil error.
func Compact(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// LogErr logs the error if present and returns it unchanged.
func LogErr(err error) error {
	if err != nil {
		log.Output(2, fmt.Sprintln(err))
	}

	return err
}

// Recovered converts a recovered panic value into an error.
func Recovered(r any) error {
	switch cause := r.(type) {
	case nil:
		return nil
	case error:
		return Wrap(cause, "recovered panic")
	default:
		return fmt.Errorf("recovered panic: %v", cause)
	}
}
