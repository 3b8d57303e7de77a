//go:build darwin

// Package goble implements the platform boundary on top of go-ble/ble, in
// the same shape as the rest of the library expects from a native stack:
// dial-based address resolution, profile-based GATT enumeration with cache
// modes, and registries of event subscribers notified from platform
// goroutines.
package goble

import (
	"context"
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleperiph/pkg/platform"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Stack implements platform.Stack. Resolved device handles are indexed by
// identifier so sessions can be established against them later.
type Stack struct {
	logger  *logrus.Logger
	devices *hashmap.Map[string, *Device]
}

// NewStack creates a go-ble backed platform stack.
func NewStack(logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.New()
	}
	return &Stack{
		logger:  logger,
		devices: hashmap.New[string, *Device](),
	}
}

// ResolveDevice dials the peripheral at addr and returns a live device
// handle. The dial honors ctx for cancellation and deadline.
func (s *Stack) ResolveDevice(ctx context.Context, addr platform.Addr) (platform.Device, error) {
	bleDev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(bleDev)

	s.logger.WithField("address", addr.String()).Debug("Dialing BLE device...")
	client, err := ble.Dial(ctx, ble.NewAddr(addr.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial device %s: %w", addr, err)
	}

	dev := newDevice(addr, client, s.logger)
	s.devices.Set(dev.ID(), dev)

	s.logger.WithField("address", addr.String()).Info("BLE device resolved")
	return dev, nil
}

// EstablishSession opens a GATT session against a previously resolved device
// handle, negotiating the transport MTU.
func (s *Stack) EstablishSession(ctx context.Context, deviceID string) (platform.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dev, ok := s.devices.Get(deviceID)
	if !ok {
		return nil, fmt.Errorf("no resolved device with id %q", deviceID)
	}
	return newSession(dev, s.logger)
}
