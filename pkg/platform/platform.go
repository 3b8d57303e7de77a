// Package platform defines the boundary to the underlying Bluetooth stack.
//
// Everything behind these interfaces is an external collaborator: radio
// management, pairing and device enumeration live elsewhere. The core only
// needs address resolution, session establishment, event subscription
// primitives and cache-mode-parameterized GATT enumeration.
package platform

import (
	"context"
	"fmt"
)

// ConnectionStatus is the link state reported by a device handle.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("connection_status(%d)", int(s))
	}
}

// CacheMode selects whether a GATT enumeration may be served from the
// platform's local topology cache or must query the peripheral live.
type CacheMode int

const (
	CacheCached CacheMode = iota
	CacheUncached
)

func (m CacheMode) String() string {
	switch m {
	case CacheCached:
		return "cached"
	case CacheUncached:
		return "uncached"
	default:
		return fmt.Sprintf("cache_mode(%d)", int(m))
	}
}

// CommunicationStatus classifies the outcome of a GATT enumeration.
// A non-Success status is distinct from the enumeration call itself failing:
// the latter is reported through the method's error return.
type CommunicationStatus int

const (
	CommSuccess CommunicationStatus = iota
	CommUnreachable
	CommProtocolError
	CommAccessDenied
)

func (s CommunicationStatus) String() string {
	switch s {
	case CommSuccess:
		return "success"
	case CommUnreachable:
		return "unreachable"
	case CommProtocolError:
		return "protocol_error"
	case CommAccessDenied:
		return "access_denied"
	default:
		return fmt.Sprintf("communication_status(%d)", int(s))
	}
}

// Token identifies a single event registration on a device or session handle.
// Tokens are valid only against the handle that issued them.
type Token uint64

// Stack is the entry point into the platform Bluetooth API.
type Stack interface {
	// ResolveDevice resolves a 48-bit address to a live device handle.
	// The caller owns the returned handle and must Close it.
	ResolveDevice(ctx context.Context, addr Addr) (Device, error)

	// EstablishSession opens a GATT session keyed by a resolved device's
	// identifier.
	EstablishSession(ctx context.Context, deviceID string) (Session, error)
}

// Device is a live platform device handle.
//
// Connection-status notifications may be delivered on an arbitrary platform
// goroutine, concurrently with any other call on the handle.
type Device interface {
	// ID returns the platform identifier used to key session establishment.
	ID() string

	// ConnectionStatus queries the current link state. It is never cached:
	// the state can change asynchronously out-of-band.
	ConnectionStatus() (ConnectionStatus, error)

	// SubscribeConnectionStatus registers a callback invoked on every
	// link-state transition.
	SubscribeConnectionStatus(fn func(ConnectionStatus)) (Token, error)
	UnsubscribeConnectionStatus(tok Token) error

	// Services enumerates the device's GATT services in the given cache mode.
	Services(ctx context.Context, mode CacheMode) (*ServicesResult, error)

	// Close releases the device handle.
	Close() error
}

// Session is a live GATT session handle. It outlives transient link-layer
// connections and carries the negotiated transport parameters.
type Session interface {
	// MaxPDUSize returns the current negotiated maximum PDU size.
	MaxPDUSize() uint16

	// SubscribeMaxPDUSizeChanged registers a callback invoked whenever the
	// negotiated PDU size changes.
	SubscribeMaxPDUSizeChanged(fn func(uint16)) (Token, error)
	UnsubscribeMaxPDUSizeChanged(tok Token) error
}

// Service is an open GATT service handle. It must be Closed when no longer
// needed; the platform keeps resources open per handle.
type Service interface {
	UUID() string
	Characteristics(ctx context.Context, mode CacheMode) (*CharacteristicsResult, error)
	Close() error
}

// Characteristic is a GATT characteristic handle. Characteristic handles are
// transient and not cached by the core.
type Characteristic interface {
	UUID() string
	Descriptors(ctx context.Context, mode CacheMode) (*DescriptorsResult, error)
}

// Descriptor is a GATT descriptor handle.
type Descriptor interface {
	UUID() string
}

// ServicesResult is the outcome of a service enumeration.
type ServicesResult struct {
	Status CommunicationStatus
	// ProtocolCode carries the raw ATT error code when Status is
	// CommProtocolError.
	ProtocolCode uint8
	Services     []Service
}

// CharacteristicsResult is the outcome of a characteristic enumeration.
type CharacteristicsResult struct {
	Status          CommunicationStatus
	ProtocolCode    uint8
	Characteristics []Characteristic
}

// DescriptorsResult is the outcome of a descriptor enumeration.
type DescriptorsResult struct {
	Status       CommunicationStatus
	ProtocolCode uint8
	Descriptors  []Descriptor
}
