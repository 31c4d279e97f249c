package chatwidget

import (
	"errors"
	"fmt"
)

var (
	ErrStoreRead    = errors.New("datastore read failed")
	ErrStoreWrite   = errors.New("datastore write failed")
	ErrAIGateway    = errors.New("ai gateway failed")
	ErrSubscription = errors.New("realtime subscription failed")

	ErrEmptyMessage   = errors.New("message is empty")
	ErrNotReady       = errors.New("chat is not ready")
	ErrSendInProgress = errors.New("a message is already being sent")
	ErrInitInProgress = errors.New("chat is already initializing")
	ErrDisposed       = errors.New("chat controller disposed")
)

// Op distinguishes datastore reads from writes.
type Op string

const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// StoreError reports a failed datastore query or insert. It matches ErrStoreRead or
// ErrStoreWrite with errors.Is.
type StoreError struct {
	Op     Op
	Status int
	Err    error
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("datastore %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("datastore %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	kind := ErrStoreRead
	if e.Op == OpWrite {
		kind = ErrStoreWrite
	}
	return []error{kind, e.Err}
}

// GatewayError reports a failed or malformed AI completion call.
type GatewayError struct {
	Status int
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ai gateway failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("ai gateway failed: %v", e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrAIGateway, e.Err}
}

// SubscriptionError reports a realtime channel that could not open or dropped.
type SubscriptionError struct {
	ConversationID string
	Err            error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("realtime subscription for %s failed: %v", e.ConversationID, e.Err)
}

func (e *SubscriptionError) Unwrap() []error {
	return []error{ErrSubscription, e.Err}
}

func storeError(op Op, err error) error {
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func gatewayError(err error) error {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Err: err}
}
