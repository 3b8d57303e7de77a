package peripheral

import (
	"fmt"

	"github.com/srg/bleperiph/pkg/platform"
)

// ErrorKind discriminates failure classes surfaced by this package.
type ErrorKind string

const (
	// DeviceNotFound covers both address resolution and session
	// establishment failures: either way the device is currently
	// unreachable or absent.
	DeviceNotFound ErrorKind = "device_not_found"

	// SubscriptionFailed means the platform rejected an event registration.
	SubscriptionFailed ErrorKind = "subscription_failed"

	// ProtocolError means the peripheral actively rejected a GATT request.
	ProtocolError ErrorKind = "protocol_error"

	// OperationFailed is any other platform call failure, carrying the
	// underlying diagnostic.
	OperationFailed ErrorKind = "operation_failed"
)

// Error is the typed error returned by this package.
type Error struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare Error values by Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind.
var (
	ErrDeviceNotFound     = &Error{Kind: DeviceNotFound}
	ErrSubscriptionFailed = &Error{Kind: SubscriptionFailed}
	ErrProtocolError      = &Error{Kind: ProtocolError}
	ErrOperationFailed    = &Error{Kind: OperationFailed}
)

// NotFoundError reports a service-cache lookup miss.
type NotFoundError struct {
	Resource string // "service"
	UUID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.UUID)
}

// statusError translates a non-Success enumeration status into the
// corresponding error kind. Success yields nil.
func statusError(op string, status platform.CommunicationStatus, protocolCode uint8) error {
	switch status {
	case platform.CommSuccess:
		return nil
	case platform.CommUnreachable:
		return fmt.Errorf("%w: %s: device unreachable", ErrDeviceNotFound, op)
	case platform.CommProtocolError:
		return fmt.Errorf("%w: %s: peripheral rejected request (ATT error 0x%02x)", ErrProtocolError, op, protocolCode)
	default:
		return fmt.Errorf("%w: %s: status %s", ErrOperationFailed, op, status)
	}
}
