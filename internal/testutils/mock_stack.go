package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/bleperiph/pkg/platform"
)

// MockStack implements platform.Stack over an in-memory device registry.
// Failure injection is done by setting the exported Err fields before the
// call under test.
type MockStack struct {
	mu      sync.Mutex
	devices map[string]*MockDevice

	ResolveErr error
	SessionErr error

	ResolveCalls int
	SessionCalls int
}

func NewMockStack() *MockStack {
	return &MockStack{
		devices: make(map[string]*MockDevice),
	}
}

func (s *MockStack) AddDevice(d *MockDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.addr.String()] = d
}

func (s *MockStack) ResolveDevice(_ context.Context, addr platform.Addr) (platform.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ResolveCalls++
	if s.ResolveErr != nil {
		return nil, s.ResolveErr
	}

	d, ok := s.devices[addr.String()]
	if !ok {
		return nil, fmt.Errorf("no peripheral at %s", addr)
	}
	return d, nil
}

func (s *MockStack) EstablishSession(ctx context.Context, deviceID string) (platform.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SessionCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.SessionErr != nil {
		return nil, s.SessionErr
	}

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("no session for device %q", deviceID)
	}
	return d.Session, nil
}

// MockDevice implements platform.Device with a scripted topology and
// per-call recording so tests can assert on cache modes and teardown.
type MockDevice struct {
	mu   sync.Mutex
	addr platform.Addr

	Session *MockSession

	status    platform.ConnectionStatus
	StatusErr error

	subs      map[platform.Token]func(platform.ConnectionStatus)
	nextToken platform.Token

	SubscribeErr     error
	UnsubscribeErr   error
	UnsubscribeCalls int

	Topology             []*MockService
	ServicesStatus       platform.CommunicationStatus
	ServicesProtocolCode uint8
	ServicesErr          error
	ServicesCalls        []platform.CacheMode

	CloseErr   error
	CloseCalls int
}

func NewMockDevice(addr platform.Addr, maxPDU uint16) *MockDevice {
	return &MockDevice{
		addr:           addr,
		Session:        NewMockSession(maxPDU),
		status:         platform.StatusDisconnected,
		subs:           make(map[platform.Token]func(platform.ConnectionStatus)),
		ServicesStatus: platform.CommSuccess,
	}
}

func (d *MockDevice) ID() string { return d.addr.String() }

func (d *MockDevice) ConnectionStatus() (platform.ConnectionStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.StatusErr != nil {
		return platform.StatusDisconnected, d.StatusErr
	}
	return d.status, nil
}

// SetConnectionStatus changes the reported status without notifying
// subscribers. Use FireConnectionStatus to do both.
func (d *MockDevice) SetConnectionStatus(status platform.ConnectionStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = status
}

func (d *MockDevice) SubscribeConnectionStatus(fn func(platform.ConnectionStatus)) (platform.Token, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.SubscribeErr != nil {
		return 0, d.SubscribeErr
	}
	d.nextToken++
	d.subs[d.nextToken] = fn
	return d.nextToken, nil
}

func (d *MockDevice) UnsubscribeConnectionStatus(tok platform.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.UnsubscribeCalls++
	if d.UnsubscribeErr != nil {
		return d.UnsubscribeErr
	}
	if _, ok := d.subs[tok]; !ok {
		return fmt.Errorf("unknown connection status token %d", tok)
	}
	delete(d.subs, tok)
	return nil
}

// ActiveSubscriptions reports how many connection status callbacks are
// still registered.
func (d *MockDevice) ActiveSubscriptions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// FireConnectionStatus updates the reported status and delivers it to every
// registered callback on the caller's goroutine.
func (d *MockDevice) FireConnectionStatus(status platform.ConnectionStatus) {
	d.mu.Lock()
	d.status = status
	fns := make([]func(platform.ConnectionStatus), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn(status)
	}
}

func (d *MockDevice) Services(_ context.Context, mode platform.CacheMode) (*platform.ServicesResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ServicesCalls = append(d.ServicesCalls, mode)
	if d.ServicesErr != nil {
		return nil, d.ServicesErr
	}

	result := &platform.ServicesResult{
		Status:       d.ServicesStatus,
		ProtocolCode: d.ServicesProtocolCode,
	}
	if d.ServicesStatus == platform.CommSuccess {
		for _, svc := range d.Topology {
			result.Services = append(result.Services, svc)
		}
	}
	return result, nil
}

func (d *MockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.CloseCalls++
	return d.CloseErr
}

// MockSession implements platform.Session with a controllable max PDU size.
type MockSession struct {
	mu     sync.Mutex
	maxPDU uint16

	subs      map[platform.Token]func(uint16)
	nextToken platform.Token

	SubscribeErr     error
	UnsubscribeErr   error
	UnsubscribeCalls int
}

func NewMockSession(maxPDU uint16) *MockSession {
	return &MockSession{
		maxPDU: maxPDU,
		subs:   make(map[platform.Token]func(uint16)),
	}
}

func (s *MockSession) MaxPDUSize() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPDU
}

func (s *MockSession) SubscribeMaxPDUSizeChanged(fn func(uint16)) (platform.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SubscribeErr != nil {
		return 0, s.SubscribeErr
	}
	s.nextToken++
	s.subs[s.nextToken] = fn
	return s.nextToken, nil
}

func (s *MockSession) UnsubscribeMaxPDUSizeChanged(tok platform.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.UnsubscribeCalls++
	if s.UnsubscribeErr != nil {
		return s.UnsubscribeErr
	}
	if _, ok := s.subs[tok]; !ok {
		return fmt.Errorf("unknown max PDU size token %d", tok)
	}
	delete(s.subs, tok)
	return nil
}

func (s *MockSession) ActiveSubscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// FireMaxPDUSizeChanged updates the size and delivers it to every registered
// callback on the caller's goroutine.
func (s *MockSession) FireMaxPDUSizeChanged(size uint16) {
	s.mu.Lock()
	s.maxPDU = size
	fns := make([]func(uint16), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(size)
	}
}
