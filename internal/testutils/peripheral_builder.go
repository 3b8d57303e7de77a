package testutils

import (
	"github.com/srg/bleperiph/pkg/platform"
)

const (
	// DefaultTestAddr is the address used by builders unless overridden.
	DefaultTestAddr = "AA:BB:CC:DD:EE:FF"

	// DefaultTestMaxPDU matches a typical negotiated LE data length.
	DefaultTestMaxPDU = 247
)

// PeripheralBuilder assembles a MockStack with a single peripheral using a
// fluent interface:
//
//	stack, dev := NewPeripheralBuilder().
//	    WithService("180f").
//	    WithCharacteristic("2a19").
//	    WithDescriptor("2902").
//	    Build()
//
// WithCharacteristic attaches to the most recent WithService, and
// WithDescriptor to the most recent WithCharacteristic.
type PeripheralBuilder struct {
	addr   platform.Addr
	maxPDU uint16

	services []*MockService
	lastSvc  *MockService
	lastChar *MockCharacteristic
}

func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{
		addr:   platform.MustParseAddr(DefaultTestAddr),
		maxPDU: DefaultTestMaxPDU,
	}
}

func (b *PeripheralBuilder) WithAddress(addr string) *PeripheralBuilder {
	b.addr = platform.MustParseAddr(addr)
	return b
}

func (b *PeripheralBuilder) WithMaxPDUSize(size uint16) *PeripheralBuilder {
	b.maxPDU = size
	return b
}

func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	svc := NewMockService(uuid)
	b.services = append(b.services, svc)
	b.lastSvc = svc
	b.lastChar = nil
	return b
}

func (b *PeripheralBuilder) WithCharacteristic(uuid string) *PeripheralBuilder {
	if b.lastSvc == nil {
		panic("testutils: WithCharacteristic requires a preceding WithService")
	}
	ch := NewMockCharacteristic(uuid)
	b.lastSvc.Chars = append(b.lastSvc.Chars, ch)
	b.lastChar = ch
	return b
}

func (b *PeripheralBuilder) WithDescriptor(uuid string) *PeripheralBuilder {
	if b.lastChar == nil {
		panic("testutils: WithDescriptor requires a preceding WithCharacteristic")
	}
	b.lastChar.Descs = append(b.lastChar.Descs, NewMockDescriptor(uuid))
	return b
}

// Build registers the peripheral on a fresh MockStack and returns both.
func (b *PeripheralBuilder) Build() (*MockStack, *MockDevice) {
	dev := NewMockDevice(b.addr, b.maxPDU)
	dev.Topology = b.services

	stack := NewMockStack()
	stack.AddDevice(dev)
	return stack, dev
}

// Addr returns the peripheral address the builder is configured with.
func (b *PeripheralBuilder) Addr() platform.Addr { return b.addr }
