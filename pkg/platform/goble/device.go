//go:build darwin

package goble

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleperiph/internal/groutine"
	"github.com/srg/bleperiph/pkg/platform"
)

// Device implements platform.Device over a dialed ble.Client.
//
// go-ble reports disconnection through the client's Disconnected() channel
// (Darwin-specific); a monitor goroutine translates that into status
// notifications for subscribers.
type Device struct {
	addr   platform.Addr
	client ble.Client
	logger *logrus.Logger

	connected atomic.Bool
	closed    atomic.Bool

	subs      *hashmap.Map[uint64, func(platform.ConnectionStatus)]
	nextToken atomic.Uint64
}

func newDevice(addr platform.Addr, client ble.Client, logger *logrus.Logger) *Device {
	d := &Device{
		addr:   addr,
		client: client,
		logger: logger,
		subs:   hashmap.New[uint64, func(platform.ConnectionStatus)](),
	}
	d.connected.Store(true)

	// Monitor go-ble client Disconnected() channel (Darwin-specific).
	if monitored, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "goble-disconnect-monitor-"+addr.String(), func(context.Context) {
			<-monitored.Disconnected()
			if d.connected.Swap(false) {
				d.logger.WithField("address", d.addr.String()).Warn("Platform reported disconnection")
				d.notifyStatus(platform.StatusDisconnected)
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel (non-Darwin platform?)")
	}

	return d
}

// ID returns the identifier sessions are keyed by.
func (d *Device) ID() string {
	return d.addr.String()
}

// ConnectionStatus reports the current link state.
func (d *Device) ConnectionStatus() (platform.ConnectionStatus, error) {
	if d.closed.Load() {
		return platform.StatusDisconnected, fmt.Errorf("device handle %s is closed", d.addr)
	}
	if d.connected.Load() {
		return platform.StatusConnected, nil
	}
	return platform.StatusDisconnected, nil
}

// SubscribeConnectionStatus registers fn for link-state transitions.
func (d *Device) SubscribeConnectionStatus(fn func(platform.ConnectionStatus)) (platform.Token, error) {
	if fn == nil {
		return 0, fmt.Errorf("connection status callback is required")
	}
	if d.closed.Load() {
		return 0, fmt.Errorf("device handle %s is closed", d.addr)
	}

	tok := d.nextToken.Add(1)
	d.subs.Set(tok, fn)
	return platform.Token(tok), nil
}

// UnsubscribeConnectionStatus removes a registration by token.
func (d *Device) UnsubscribeConnectionStatus(tok platform.Token) error {
	if !d.subs.Del(uint64(tok)) {
		return fmt.Errorf("unknown connection status token %d", tok)
	}
	return nil
}

func (d *Device) notifyStatus(status platform.ConnectionStatus) {
	d.subs.Range(func(_ uint64, fn func(platform.ConnectionStatus)) bool {
		fn(status)
		return true
	})
}

// Services enumerates GATT services. Uncached mode forces go-ble to
// re-discover the profile from the peripheral; cached mode reuses the
// client's profile when one exists.
func (d *Device) Services(ctx context.Context, mode platform.CacheMode) (*platform.ServicesResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.closed.Load() {
		return nil, fmt.Errorf("device handle %s is closed", d.addr)
	}

	profile, err := d.client.DiscoverProfile(mode == platform.CacheUncached)
	if err != nil {
		return nil, fmt.Errorf("profile discovery (%s) for %s failed: %w", mode, d.addr, err)
	}

	// A completed discovery round trip means the GATT link is up.
	d.connected.Store(true)

	services := make([]platform.Service, 0, len(profile.Services))
	for _, svc := range profile.Services {
		services = append(services, newService(svc, d.client, d.logger))
	}

	d.logger.WithFields(logrus.Fields{
		"address":  d.addr.String(),
		"mode":     mode.String(),
		"services": len(services),
	}).Debug("Profile discovered")

	return &platform.ServicesResult{
		Status:   platform.CommSuccess,
		Services: services,
	}, nil
}

// Close cancels the underlying connection and invalidates the handle.
func (d *Device) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	d.connected.Store(false)
	if err := d.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to cancel connection to %s: %w", d.addr, err)
	}
	return nil
}
