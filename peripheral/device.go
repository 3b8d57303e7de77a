// Package peripheral models the connection lifecycle and GATT
// service-discovery protocol for a single BLE peripheral.
//
// A Device is created from a 48-bit address and two change handlers, tracks
// connection liveness and the negotiated maximum PDU size through platform
// event subscriptions, discovers the service/characteristic/descriptor
// topology with an explicit cache-vs-live policy, and tears everything down
// deterministically on Close.
package peripheral

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bleperiph/internal/eventbridge"
	"github.com/srg/bleperiph/pkg/platform"
)

// ConnectionChangedHandler receives every connection-status transition.
// It may be invoked concurrently with any other operation on the Device.
type ConnectionChangedHandler func(connected bool)

// MaxPDUSizeChangedHandler receives the negotiated maximum PDU size: once
// synchronously during construction with the current value, then on every
// live change. The initial delivery always precedes any live one.
type MaxPDUSizeChangedHandler func(size uint16)

const (
	connectionEventQueueSize = 16
	pduEventQueueSize        = 4
)

// Device is the aggregate root for one BLE peripheral. It owns the live
// device and session handles, both event registrations, and the cached
// service topology. All methods are safe for concurrent use.
type Device struct {
	addr    platform.Addr
	device  platform.Device
	session platform.Session

	connReg *eventbridge.Registration[platform.ConnectionStatus]
	pduReg  *eventbridge.Registration[uint16]

	// cacheMu guards services. The cache reflects the most recent successful
	// cached-mode discovery; readers never observe a partial replacement.
	cacheMu  sync.RWMutex
	services *orderedmap.OrderedMap[string, platform.Service]

	// connectTimeout, when non-zero, bounds Connect calls whose context
	// carries no deadline of its own.
	connectTimeout time.Duration

	closeOnce sync.Once
	logger    *logrus.Logger
}

// connectionStatusSource adapts a device handle to the event bridge.
type connectionStatusSource struct {
	dev platform.Device
}

func (s connectionStatusSource) Subscribe(fn func(platform.ConnectionStatus)) (platform.Token, error) {
	return s.dev.SubscribeConnectionStatus(fn)
}

func (s connectionStatusSource) Unsubscribe(tok platform.Token) error {
	return s.dev.UnsubscribeConnectionStatus(tok)
}

// maxPDUSizeSource adapts a session handle to the event bridge.
type maxPDUSizeSource struct {
	session platform.Session
}

func (s maxPDUSizeSource) Subscribe(fn func(uint16)) (platform.Token, error) {
	return s.session.SubscribeMaxPDUSizeChanged(fn)
}

func (s maxPDUSizeSource) Unsubscribe(tok platform.Token) error {
	return s.session.UnsubscribeMaxPDUSizeChanged(tok)
}

// New resolves addr to a live device handle, establishes a GATT session and
// wires both event subscriptions. Resolution and session failures collapse
// into ErrDeviceNotFound: either way the device is currently unreachable.
//
// onMaxPDUSizeChanged is invoked synchronously with the current value before
// the live subscription is registered, so the consumer observes an initial
// value without racing the first live notification.
//
// A failure at any step aborts construction entirely: handles and
// registrations acquired by earlier steps are released before the error is
// returned, so no partial device and no dangling registration survive.
func New(
	ctx context.Context,
	stack platform.Stack,
	addr platform.Addr,
	onConnectionChanged ConnectionChangedHandler,
	onMaxPDUSizeChanged MaxPDUSizeChangedHandler,
	logger *logrus.Logger,
) (*Device, error) {
	return newDevice(ctx, stack, addr, onConnectionChanged, onMaxPDUSizeChanged, logger,
		connectionEventQueueSize, 0)
}

func newDevice(
	ctx context.Context,
	stack platform.Stack,
	addr platform.Addr,
	onConnectionChanged ConnectionChangedHandler,
	onMaxPDUSizeChanged MaxPDUSizeChangedHandler,
	logger *logrus.Logger,
	connQueueSize int,
	connectTimeout time.Duration,
) (*Device, error) {
	if stack == nil {
		return nil, fmt.Errorf("%w: platform stack is required", ErrOperationFailed)
	}
	if onConnectionChanged == nil || onMaxPDUSizeChanged == nil {
		return nil, fmt.Errorf("%w: both event handlers are required", ErrOperationFailed)
	}
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := stack.ResolveDevice(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve device %s: %v", ErrDeviceNotFound, addr, err)
	}

	session, err := stack.EstablishSession(ctx, dev.ID())
	if err != nil {
		closeQuiet(logger, "device", addr, dev.Close)
		return nil, fmt.Errorf("%w: failed to establish session for %s: %v", ErrDeviceNotFound, addr, err)
	}

	connReg, err := eventbridge.Subscribe(connectionStatusSource{dev}, "connection-status", connQueueSize,
		func(status platform.ConnectionStatus) {
			logger.WithFields(logrus.Fields{
				"address": addr.String(),
				"status":  status.String(),
			}).Debug("Connection status changed")
			onConnectionChanged(status == platform.StatusConnected)
		}, logger)
	if err != nil {
		closeQuiet(logger, "device", addr, dev.Close)
		return nil, fmt.Errorf("%w: could not add connection status handler: %v", ErrSubscriptionFailed, err)
	}

	// Initial value, delivered before the live subscription exists so it is
	// guaranteed to precede any live notification.
	onMaxPDUSizeChanged(session.MaxPDUSize())

	pduReg, err := eventbridge.Subscribe(maxPDUSizeSource{session}, "max-pdu-size", pduEventQueueSize,
		func(size uint16) {
			onMaxPDUSizeChanged(size)
		}, logger)
	if err != nil {
		connReg.Release()
		closeQuiet(logger, "device", addr, dev.Close)
		return nil, fmt.Errorf("%w: could not add max pdu size handler: %v", ErrSubscriptionFailed, err)
	}

	d := &Device{
		addr:           addr,
		device:         dev,
		session:        session,
		connReg:        connReg,
		pduReg:         pduReg,
		services:       orderedmap.New[string, platform.Service](),
		connectTimeout: connectTimeout,
		logger:         logger,
	}

	logger.WithFields(logrus.Fields{
		"address":      addr.String(),
		"max_pdu_size": session.MaxPDUSize(),
	}).Info("BLE device ready")

	return d, nil
}

// Address returns the address the device was constructed from.
func (d *Device) Address() platform.Addr {
	return d.addr
}

// IsConnected queries the live device handle's current link state. The state
// is never cached: it can change asynchronously out-of-band.
func (d *Device) IsConnected() (bool, error) {
	status, err := d.device.ConnectionStatus()
	if err != nil {
		return false, fmt.Errorf("%w: connection status query failed: %v", ErrOperationFailed, err)
	}
	return status == platform.StatusConnected, nil
}

// Connect brings up the GATT link. It is idempotent: if the device already
// reports connected, it returns immediately with no side effect. Otherwise it
// runs an uncached service enumeration purely to force the platform to
// establish the connection; the enumerated list is discarded and only the
// resulting status is translated into the outcome.
func (d *Device) Connect(ctx context.Context) error {
	if d.connectTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.connectTimeout)
			defer cancel()
		}
	}

	connected, err := d.IsConnected()
	if err != nil {
		return err
	}
	if connected {
		return nil
	}

	result, err := d.gattServices(ctx, platform.CacheUncached)
	if err != nil {
		return err
	}
	return statusError("connect", result.Status, result.ProtocolCode)
}

// gattServices is the single enumeration primitive behind Connect (uncached)
// and DiscoverServices (cached). A platform-level failure of the call itself
// surfaces as ErrOperationFailed with the underlying diagnostic.
func (d *Device) gattServices(ctx context.Context, mode platform.CacheMode) (*platform.ServicesResult, error) {
	result, err := d.device.Services(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s service enumeration failed: %v", ErrOperationFailed, mode, err)
	}
	return result, nil
}

// DiscoverServices runs a cached-mode enumeration. On Success the cached
// topology is replaced wholesale, preserving enumeration order; on any other
// status the previous (possibly stale) cache is returned untouched, so a
// transient discovery glitch never erases known topology.
func (d *Device) DiscoverServices(ctx context.Context) ([]platform.Service, error) {
	result, err := d.gattServices(ctx, platform.CacheCached)
	if err != nil {
		return nil, err
	}

	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()

	if result.Status == platform.CommSuccess {
		refreshed := orderedmap.New[string, platform.Service]()
		for _, svc := range result.Services {
			uuid := platform.NormalizeUUID(svc.UUID())
			if _, exists := refreshed.Get(uuid); !exists {
				refreshed.Set(uuid, svc)
				d.logger.WithFields(logrus.Fields{
					"uuid": uuid,
					"name": platform.KnownName(uuid),
				}).Debug("Service discovered")
			}
		}
		// Displaced handles stay open: snapshots handed out earlier may
		// still hold them. Only handles cached at teardown time are closed.
		d.services = refreshed
		d.logger.WithFields(logrus.Fields{
			"address":  d.addr.String(),
			"services": refreshed.Len(),
		}).Debug("Service cache refreshed")
	} else {
		d.logger.WithFields(logrus.Fields{
			"address": d.addr.String(),
			"status":  result.Status.String(),
		}).Debug("Service discovery returned non-success status, keeping cached topology")
	}

	return d.cachedServicesLocked(), nil
}

// Services returns a snapshot of the cached service topology in enumeration
// order. It is empty until the first successful DiscoverServices.
func (d *Device) Services() []platform.Service {
	d.cacheMu.RLock()
	defer d.cacheMu.RUnlock()
	return d.cachedServicesLocked()
}

// GetService looks a cached service up by UUID. The UUID is normalized for
// the lookup. Returns a NotFoundError if the service is not in the cache.
func (d *Device) GetService(uuid string) (platform.Service, error) {
	d.cacheMu.RLock()
	defer d.cacheMu.RUnlock()

	svc, ok := d.services.Get(platform.NormalizeUUID(uuid))
	if !ok {
		return nil, &NotFoundError{Resource: "service", UUID: uuid}
	}
	return svc, nil
}

// cachedServicesLocked builds an ordered snapshot. Caller holds cacheMu.
func (d *Device) cachedServicesLocked() []platform.Service {
	out := make([]platform.Service, 0, d.services.Len())
	for pair := d.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// GetCharacteristics enumerates svc's characteristics, always uncached:
// children of a service are volatile and must reflect current platform
// state. Status handling is three-way: Success returns the enumerated set,
// a protocol error fails because the peripheral actively rejected the
// request, and any other non-success status returns an empty set with no
// error — nothing is available right now, which is not a failure.
func (d *Device) GetCharacteristics(ctx context.Context, svc platform.Service) ([]platform.Characteristic, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: service is required", ErrOperationFailed)
	}

	result, err := svc.Characteristics(ctx, platform.CacheUncached)
	if err != nil {
		return nil, fmt.Errorf("%w: characteristic enumeration for service %s failed: %v", ErrOperationFailed, svc.UUID(), err)
	}

	switch result.Status {
	case platform.CommSuccess:
		d.logger.WithFields(logrus.Fields{
			"service":         svc.UUID(),
			"characteristics": len(result.Characteristics),
		}).Debug("Characteristics enumerated")
		return result.Characteristics, nil
	case platform.CommProtocolError:
		return nil, fmt.Errorf("%w: characteristic enumeration for service %s rejected by peripheral (ATT error 0x%02x)",
			ErrProtocolError, svc.UUID(), result.ProtocolCode)
	default:
		d.logger.WithFields(logrus.Fields{
			"service": svc.UUID(),
			"status":  result.Status.String(),
		}).Debug("Characteristic enumeration returned non-success status")
		return []platform.Characteristic{}, nil
	}
}

// GetCharacteristicDescriptors enumerates char's descriptors, always
// uncached. Unlike GetCharacteristics there is no empty-set leniency: any
// non-Success status is an error.
func (d *Device) GetCharacteristicDescriptors(ctx context.Context, char platform.Characteristic) ([]platform.Descriptor, error) {
	if char == nil {
		return nil, fmt.Errorf("%w: characteristic is required", ErrOperationFailed)
	}

	result, err := char.Descriptors(ctx, platform.CacheUncached)
	if err != nil {
		return nil, fmt.Errorf("%w: descriptor enumeration for characteristic %s failed: %v", ErrOperationFailed, char.UUID(), err)
	}
	if result.Status != platform.CommSuccess {
		return nil, fmt.Errorf("%w: descriptor enumeration for characteristic %s failed: status %s",
			ErrOperationFailed, char.UUID(), result.Status)
	}

	d.logger.WithFields(logrus.Fields{
		"characteristic": char.UUID(),
		"descriptors":    len(result.Descriptors),
	}).Debug("Descriptors enumerated")
	return result.Descriptors, nil
}

// Close tears the device down exactly once, in reverse order of acquisition:
// the max-PDU-size registration, the connection-status registration, every
// cached service handle, then the device handle. Each step is best-effort; a
// failure is logged and never stops the remaining steps or escapes to the
// caller.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.pduReg.Release()
		d.connReg.Release()

		d.cacheMu.Lock()
		services := d.cachedServicesLocked()
		d.services = orderedmap.New[string, platform.Service]()
		d.cacheMu.Unlock()

		for _, svc := range services {
			if err := svc.Close(); err != nil {
				d.logger.WithFields(logrus.Fields{
					"address": d.addr.String(),
					"service": svc.UUID(),
				}).WithError(err).Warn("Failed to close service handle")
			}
		}

		if err := d.device.Close(); err != nil {
			d.logger.WithField("address", d.addr.String()).WithError(err).Warn("Failed to close device handle")
		}

		d.logger.WithField("address", d.addr.String()).Debug("Device closed")
	})
}

// closeQuiet releases a handle during construction rollback, logging instead
// of propagating since the constructor error is already on its way out.
func closeQuiet(logger *logrus.Logger, what string, addr platform.Addr, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.WithFields(logrus.Fields{
			"handle":  what,
			"address": addr.String(),
		}).WithError(err).Warn("Failed to release handle during construction rollback")
	}
}
