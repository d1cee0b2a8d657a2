package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed or missing request value.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks an unknown download or an unmet update condition.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID is returned when a download id already exists.
	ErrDuplicateID = errors.New("duplicate download id")
)

// InputError is a request validation failure. Its message is safe to return
// to callers and it matches ErrInvalidInput.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

// InvalidInput returns an InputError with msg.
func InvalidInput(msg string) error {
	return &InputError{Msg: msg}
}

// InputMessage returns the caller-facing message of an InputError in err's chain.
func InputMessage(err error) (string, bool) {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.Msg, true
	}
	return "", false
}

// FetchError reports a failure fetching the source URL.
type FetchError struct {
	URL        string
	StatusCode int
	Status     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed: %v", e.Err)
	}
	return fmt.Sprintf("fetch failed: %s", e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StorageError reports a failed object store operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
