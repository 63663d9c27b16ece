// Package apperrors defines the typed error taxonomy shared by every
// component: validation, not-found, storage, pub/sub, transport, channel
// and internal failures. Composite loops (the pipeline, the evaluator) use
// these types to decide whether to log-and-continue or log-and-drop; the
// API layer uses HTTPStatus to map them to a response code.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups when the addressed entity does not
// exist. Wrap with fmt.Errorf("%w: rule %s", ErrNotFound, id) or use
// NewNotFoundError for the entity/id-carrying form.
var ErrNotFound = errors.New("not found")

// ErrChannelClosed indicates an internal queue was closed, which is only
// expected to happen during shutdown.
var ErrChannelClosed = errors.New("channel closed")

// ValidationError rejects caller input before any work begins. Never
// logged as an error; surfaced to API callers as 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError names the entity kind and id that could not be located.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError for the given entity kind and id.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// StorageError wraps a persistence-layer failure. Surfaced as 500 to API
// callers; logged-and-dropped inside the pipeline; logged-and-skipped for
// the affected rule inside the evaluator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err with the operation name that failed.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// PubSubError wraps a broker failure. Surfaced as 500 for subscribe;
// logged-and-ignored for publish (never blocks ingestion).
type PubSubError struct {
	Op  string
	Err error
}

func (e *PubSubError) Error() string { return fmt.Sprintf("pubsub: %s: %v", e.Op, e.Err) }
func (e *PubSubError) Unwrap() error { return e.Err }

// NewPubSubError wraps err with the operation name that failed.
func NewPubSubError(op string, err error) *PubSubError {
	return &PubSubError{Op: op, Err: err}
}

// TransportError wraps an outbound HTTP failure to a notification sink. It
// is captured in a NotificationRecord's error message; it never fails the
// owning alert event.
type TransportError struct {
	Channel string
	Err     error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport(%s): %v", e.Channel, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with the channel type that failed delivery.
func NewTransportError(channel string, err error) *TransportError {
	return &TransportError{Channel: channel, Err: err}
}

// InternalError is an unexpected programmer error: surfaced as 500, logged
// with its full context.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal: %v", e.Err) }
func (e *InternalError) Unwrap() error { return e.Err }

// NewInternalError wraps err as an InternalError.
func NewInternalError(err error) *InternalError {
	return &InternalError{Err: err}
}
