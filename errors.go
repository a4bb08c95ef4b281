package memkv

import (
	"errors"

	"github.com/oshokin/memkv/store"
)

var _ error = (*Error)(nil)

// ErrorName represents the name of an error.
type ErrorName string

const (
	// InternalError is emitted when the storage engine reports a state that
	// should be unreachable through this API (e.g. a corrupt expiry header).
	InternalError ErrorName = "InternalError"

	// InvalidOptionsError is emitted when Options fail validation.
	InvalidOptionsError ErrorName = "InvalidOptionsError"

	// KeyTooLargeError is emitted when a key exceeds the configured MaxKeySize.
	KeyTooLargeError ErrorName = "KeyTooLargeError"

	// OptionsConflictError is emitted when Open targets a name that is already
	// open with different options.
	OptionsConflictError ErrorName = "OptionsConflictError"

	// SerializationError is emitted when value encoding or decoding fails.
	SerializationError ErrorName = "SerializationError"

	// StoreClosedError is emitted when a handle is used after Close.
	StoreClosedError ErrorName = "StoreClosedError"

	// UnsupportedValueTypeError is emitted when a serializer rejects a value type.
	UnsupportedValueTypeError ErrorName = "UnsupportedValueTypeError"

	// ValueParseError is emitted when stored values cannot be parsed
	// (e.g. IncrementBy on a non-integer payload).
	ValueParseError ErrorName = "ValueParseError"

	// ValueTooLargeError is emitted when an encoded value exceeds the
	// configured MaxValueSize.
	ValueTooLargeError ErrorName = "ValueTooLargeError"
)

// Error represents a structured error emitted by the memkv package.
type Error struct {
	// Name contains one of the strings associated with an error name.
	Name ErrorName `json:"name"`

	// Message represents message or description associated with the given error name.
	Message string `json:"message"`
}

// NewError returns a new Error instance.
func NewError(name ErrorName, message string) *Error {
	return &Error{
		Name:    name,
		Message: message,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Name) + ": " + e.Message
}

// classifyError downgrades internal engine errors to the structured errors
// this package exposes. Errors that are already structured pass through
// unchanged; unknown errors are returned as-is.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var kvErr *Error
	if errors.As(err, &kvErr) {
		return kvErr
	}

	switch {
	case errors.Is(err, store.ErrValueParseFailed):
		return NewError(ValueParseError, err.Error())
	case errors.Is(err, store.ErrSweepUnsupported):
		return NewError(InvalidOptionsError, err.Error())
	case errors.Is(err, store.ErrEnvelopeCorrupt):
		return NewError(InternalError, err.Error())
	}

	return err
}
