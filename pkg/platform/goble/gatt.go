//go:build darwin

package goble

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleperiph/pkg/platform"
)

// Service implements platform.Service over a discovered *ble.Service.
type Service struct {
	svc    *ble.Service
	client ble.Client
	logger *logrus.Logger
	closed atomic.Bool
}

func newService(svc *ble.Service, client ble.Client, logger *logrus.Logger) *Service {
	return &Service{svc: svc, client: client, logger: logger}
}

func (s *Service) UUID() string {
	return platform.NormalizeUUID(s.svc.UUID.String())
}

// Characteristics enumerates the service's characteristics. Uncached mode
// re-discovers them from the peripheral; cached mode returns the set captured
// during profile discovery.
func (s *Service) Characteristics(ctx context.Context, mode platform.CacheMode) (*platform.CharacteristicsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("service handle %s is closed", s.UUID())
	}

	chars := s.svc.Characteristics
	if mode == platform.CacheUncached {
		discovered, err := s.client.DiscoverCharacteristics(nil, s.svc)
		if err != nil {
			return nil, fmt.Errorf("characteristic discovery for service %s failed: %w", s.UUID(), err)
		}
		chars = discovered
	}

	result := make([]platform.Characteristic, 0, len(chars))
	for _, c := range chars {
		result = append(result, newCharacteristic(c, s.client, s.logger))
	}

	s.logger.WithFields(logrus.Fields{
		"service":         s.UUID(),
		"mode":            mode.String(),
		"characteristics": len(result),
	}).Debug("Characteristics discovered")

	return &platform.CharacteristicsResult{
		Status:          platform.CommSuccess,
		Characteristics: result,
	}, nil
}

// Close invalidates the handle. go-ble keeps no per-service platform
// resource, so this is local bookkeeping; closing twice is an error to
// surface double-release bugs.
func (s *Service) Close() error {
	if s.closed.Swap(true) {
		return fmt.Errorf("service handle %s already closed", s.UUID())
	}
	s.logger.WithField("service", s.UUID()).Debug("Service handle closed")
	return nil
}

// Characteristic implements platform.Characteristic.
type Characteristic struct {
	char   *ble.Characteristic
	client ble.Client
	logger *logrus.Logger
}

func newCharacteristic(char *ble.Characteristic, client ble.Client, logger *logrus.Logger) *Characteristic {
	return &Characteristic{char: char, client: client, logger: logger}
}

func (c *Characteristic) UUID() string {
	return platform.NormalizeUUID(c.char.UUID.String())
}

// Descriptors enumerates the characteristic's descriptors. Uncached mode
// re-discovers them from the peripheral.
func (c *Characteristic) Descriptors(ctx context.Context, mode platform.CacheMode) (*platform.DescriptorsResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	descs := c.char.Descriptors
	if mode == platform.CacheUncached {
		discovered, err := c.client.DiscoverDescriptors(nil, c.char)
		if err != nil {
			return nil, fmt.Errorf("descriptor discovery for characteristic %s failed: %w", c.UUID(), err)
		}
		descs = discovered
	}

	result := make([]platform.Descriptor, 0, len(descs))
	for _, d := range descs {
		result = append(result, &Descriptor{desc: d})
	}

	return &platform.DescriptorsResult{
		Status:      platform.CommSuccess,
		Descriptors: result,
	}, nil
}

// Descriptor implements platform.Descriptor.
type Descriptor struct {
	desc *ble.Descriptor
}

func (d *Descriptor) UUID() string {
	return platform.NormalizeUUID(d.desc.UUID.String())
}
