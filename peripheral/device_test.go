package peripheral_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/bleperiph/internal/testutils"
	"github.com/srg/bleperiph/peripheral"
	"github.com/srg/bleperiph/pkg/platform"
)

// eventRecorder captures handler invocations for ordering assertions.
type eventRecorder struct {
	mu   sync.Mutex
	conn []bool
	pdu  []uint16
}

func (r *eventRecorder) onConnectionChanged(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conn = append(r.conn, connected)
}

func (r *eventRecorder) onMaxPDUSizeChanged(size uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pdu = append(r.pdu, size)
}

func (r *eventRecorder) connEvents() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.conn...)
}

func (r *eventRecorder) pduEvents() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint16(nil), r.pdu...)
}

type DeviceSuite struct {
	testutils.MockStackSuite

	rec *eventRecorder
	ctx context.Context
}

func TestDeviceSuite(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

func (s *DeviceSuite) SetupTest() {
	s.MockStackSuite.SetupTest()
	s.rec = &eventRecorder{}
	s.ctx = context.Background()
}

// newDevice constructs a device against the suite's mock stack with the
// recording handlers, failing the test on error.
func (s *DeviceSuite) newDevice() *peripheral.Device {
	dev, err := peripheral.New(s.ctx, s.Stack, s.Addr,
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().NoError(err, "MUST construct a device against a reachable peripheral")
	s.Require().NotNil(dev)
	return dev
}

// GOAL: Verify the max PDU size handler is invoked synchronously during
// construction with the current negotiated value, before any live event.
//
// TEST SCENARIO:
//  1. Build a peripheral with a negotiated max PDU size of 247
//  2. Construct a device
//  3. Verify the handler already saw exactly [247] with no firing needed
func (s *DeviceSuite) TestInitialMaxPDUSizeDelivered() {
	dev := s.newDevice()
	defer dev.Close()

	s.Require().Equal([]uint16{247}, s.rec.pduEvents(),
		"MUST deliver the initial max PDU size synchronously during construction")
	s.Require().Empty(s.rec.connEvents(),
		"MUST NOT synthesize a connection event during construction")
	s.Require().Equal(1, s.Dev.Session.ActiveSubscriptions(),
		"MUST hold exactly one live max PDU size subscription after construction")
}

// GOAL: Verify a live max PDU size change is forwarded and always ordered
// after the initial synchronous delivery.
//
// TEST SCENARIO:
//  1. Construct a device (handler sees the initial 247)
//  2. Fire a renegotiation to 185
//  3. Verify the handler saw [247, 185] in that order
func (s *DeviceSuite) TestMaxPDUSizeChangeForwarded() {
	dev := s.newDevice()
	defer dev.Close()

	s.Dev.Session.FireMaxPDUSizeChanged(185)

	s.Require().Eventually(func() bool {
		return len(s.rec.pduEvents()) == 2
	}, time.Second, 10*time.Millisecond, "MUST forward the live max PDU size change")

	s.Require().Equal([]uint16{247, 185}, s.rec.pduEvents(),
		"MUST order the initial delivery before any live notification")
}

// GOAL: Verify connection status transitions from the platform reach the
// consumer handler as booleans, in order.
//
// TEST SCENARIO:
//  1. Construct a device
//  2. Fire connected, then disconnected
//  3. Verify the handler saw [true, false]
func (s *DeviceSuite) TestConnectionStatusForwarded() {
	dev := s.newDevice()
	defer dev.Close()

	s.Dev.FireConnectionStatus(platform.StatusConnected)
	s.Dev.FireConnectionStatus(platform.StatusDisconnected)

	s.Require().Eventually(func() bool {
		return len(s.rec.connEvents()) == 2
	}, time.Second, 10*time.Millisecond, "MUST forward both connection status transitions")

	s.Require().Equal([]bool{true, false}, s.rec.connEvents(),
		"MUST preserve the order of connection status transitions")
}

// GOAL: Verify address resolution failure surfaces as a device-not-found
// error.
func (s *DeviceSuite) TestConstructionResolveFailure() {
	s.Stack.ResolveErr = fmt.Errorf("radio off")

	dev, err := peripheral.New(s.ctx, s.Stack, s.Addr,
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().Nil(dev)
	s.Require().ErrorIs(err, peripheral.ErrDeviceNotFound,
		"MUST report resolution failure as device not found")
}

// GOAL: Verify an unknown address surfaces as a device-not-found error.
func (s *DeviceSuite) TestConstructionUnknownAddress() {
	dev, err := peripheral.New(s.ctx, s.Stack, platform.MustParseAddr("00:11:22:33:44:55"),
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().Nil(dev)
	s.Require().ErrorIs(err, peripheral.ErrDeviceNotFound,
		"MUST report an unknown address as device not found")
}

// GOAL: Verify session establishment failure collapses into device-not-found
// and releases the resolved device handle.
//
// TEST SCENARIO:
//  1. Inject a session failure on the stack
//  2. Construct, expect device-not-found
//  3. Verify the resolved handle was closed and nothing stayed subscribed
func (s *DeviceSuite) TestConstructionSessionFailure() {
	s.Stack.SessionErr = fmt.Errorf("GATT session refused")

	dev, err := peripheral.New(s.ctx, s.Stack, s.Addr,
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().Nil(dev)
	s.Require().ErrorIs(err, peripheral.ErrDeviceNotFound,
		"MUST report session failure as device not found")
	s.Require().Equal(1, s.Dev.CloseCalls,
		"MUST close the resolved device handle on session failure")
	s.Require().Zero(s.Dev.ActiveSubscriptions(),
		"MUST NOT leave any connection status subscription behind")
}

// GOAL: Verify a connection status subscription failure aborts construction
// with a subscription error and rolls back the device handle.
func (s *DeviceSuite) TestConstructionConnSubscribeFailure() {
	s.Dev.SubscribeErr = fmt.Errorf("event source unavailable")

	dev, err := peripheral.New(s.ctx, s.Stack, s.Addr,
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().Nil(dev)
	s.Require().ErrorIs(err, peripheral.ErrSubscriptionFailed,
		"MUST report the registration failure as a subscription error")
	s.Require().Equal(1, s.Dev.CloseCalls,
		"MUST close the device handle on rollback")
	s.Require().Zero(s.Dev.Session.ActiveSubscriptions(),
		"MUST NOT register a max PDU size subscription after an earlier failure")
}

// GOAL: Verify a max PDU size subscription failure rolls back the already
// registered connection status subscription, leaving nothing dangling.
//
// TEST SCENARIO:
//  1. Inject a subscribe failure on the session
//  2. Construct, expect a subscription error
//  3. Verify the connection status subscription was unregistered and the
//     device handle closed
func (s *DeviceSuite) TestConstructionPDUSubscribeFailureRollsBack() {
	s.Dev.Session.SubscribeErr = fmt.Errorf("event source unavailable")

	dev, err := peripheral.New(s.ctx, s.Stack, s.Addr,
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().Nil(dev)
	s.Require().ErrorIs(err, peripheral.ErrSubscriptionFailed,
		"MUST report the registration failure as a subscription error")
	s.Require().Zero(s.Dev.ActiveSubscriptions(),
		"MUST unregister the connection status subscription on rollback")
	s.Require().Equal(1, s.Dev.CloseCalls,
		"MUST close the device handle on rollback")
}

// GOAL: Verify Connect is a no-op when the device already reports connected.
func (s *DeviceSuite) TestConnectAlreadyConnected() {
	dev := s.newDevice()
	defer dev.Close()

	s.Dev.SetConnectionStatus(platform.StatusConnected)

	s.Require().NoError(dev.Connect(s.ctx),
		"MUST succeed immediately when already connected")
	s.Require().Empty(s.Dev.ServicesCalls,
		"MUST NOT enumerate services when already connected")
}

// GOAL: Verify Connect forces the link up via an uncached service
// enumeration and discards the enumerated list.
//
// TEST SCENARIO:
//  1. Device reports disconnected
//  2. Connect succeeds
//  3. Verify exactly one uncached enumeration ran and the service cache is
//     still empty
func (s *DeviceSuite) TestConnectRunsUncachedEnumeration() {
	dev := s.newDevice()
	defer dev.Close()

	s.Require().NoError(dev.Connect(s.ctx), "MUST connect a reachable peripheral")
	s.Require().Equal([]platform.CacheMode{platform.CacheUncached}, s.Dev.ServicesCalls,
		"MUST enumerate services exactly once, uncached")
	s.Require().Empty(dev.Services(),
		"MUST discard the connect-time enumeration instead of caching it")
}

// GOAL: Verify Connect translates each non-success enumeration status into
// the matching error kind.
func (s *DeviceSuite) TestConnectStatusTranslation() {
	cases := []struct {
		name    string
		status  platform.CommunicationStatus
		code    uint8
		wantErr error
	}{
		{"unreachable", platform.CommUnreachable, 0, peripheral.ErrDeviceNotFound},
		{"protocol error", platform.CommProtocolError, 0x05, peripheral.ErrProtocolError},
		{"access denied", platform.CommAccessDenied, 0, peripheral.ErrOperationFailed},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			dev := s.newDevice()
			defer dev.Close()

			s.Dev.ServicesStatus = tc.status
			s.Dev.ServicesProtocolCode = tc.code

			err := dev.Connect(s.ctx)
			s.Require().ErrorIs(err, tc.wantErr,
				"MUST translate status %s into the matching error kind", tc.status)
			if tc.status == platform.CommProtocolError {
				s.Require().Contains(err.Error(), "0x05",
					"MUST carry the ATT error code in the message")
			}
		})
	}
}

// GOAL: Verify a platform-level failure of the enumeration call itself
// surfaces as an operation failure from Connect.
func (s *DeviceSuite) TestConnectEnumerationCallFailure() {
	dev := s.newDevice()
	defer dev.Close()

	s.Dev.ServicesErr = fmt.Errorf("link dropped mid-call")

	s.Require().ErrorIs(dev.Connect(s.ctx), peripheral.ErrOperationFailed,
		"MUST surface an enumeration call failure as an operation failure")
}

// GOAL: Verify a connection status query failure surfaces as an operation
// failure from both IsConnected and Connect.
func (s *DeviceSuite) TestConnectionStatusQueryFailure() {
	dev := s.newDevice()
	defer dev.Close()

	s.Dev.StatusErr = fmt.Errorf("handle invalidated")

	_, err := dev.IsConnected()
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST surface a status query failure from IsConnected")
	s.Require().ErrorIs(dev.Connect(s.ctx), peripheral.ErrOperationFailed,
		"MUST surface a status query failure from Connect")
}

// GOAL: Verify a successful cached discovery replaces the service cache in
// enumeration order and lookups normalize UUIDs.
//
// TEST SCENARIO:
//  1. Discover services on the default battery peripheral
//  2. Verify the cached snapshot and a normalized GetService lookup
//  3. Verify a miss returns a typed not-found error
func (s *DeviceSuite) TestDiscoverServicesCachesTopology() {
	dev := s.newDevice()
	defer dev.Close()

	services, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err, "MUST discover services on a reachable peripheral")
	s.Require().Len(services, 1)
	s.Require().Equal("180f", services[0].UUID())
	s.Require().Equal([]platform.CacheMode{platform.CacheCached}, s.Dev.ServicesCalls,
		"MUST use cached-mode enumeration for discovery")

	svc, err := dev.GetService("0x180F")
	s.Require().NoError(err, "MUST normalize the UUID for cache lookups")
	s.Require().Equal("180f", svc.UUID())

	_, err = dev.GetService("1234")
	var notFound *peripheral.NotFoundError
	s.Require().ErrorAs(err, &notFound,
		"MUST return a typed not-found error on a cache miss")
	s.Require().Equal("service", notFound.Resource)
}

// GOAL: Verify a non-success discovery preserves the previously cached
// topology instead of erasing it.
//
// TEST SCENARIO:
//  1. Discover successfully, caching the battery service
//  2. Make the next discovery report unreachable
//  3. Verify no error and the stale cache is still served
//  4. Restore success with a new topology and verify wholesale replacement
func (s *DeviceSuite) TestDiscoverServicesPreservesStaleCache() {
	dev := s.newDevice()
	defer dev.Close()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(dev.Services(), 1)

	s.Dev.ServicesStatus = platform.CommUnreachable

	services, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err, "MUST NOT fail discovery on a non-success status")
	s.Require().Len(services, 1, "MUST keep serving the stale topology")
	s.Require().Equal("180f", services[0].UUID())

	s.Dev.ServicesStatus = platform.CommSuccess
	s.Dev.Topology = []*testutils.MockService{testutils.NewMockService("180a")}

	services, err = dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(services, 1, "MUST replace the cache wholesale on success")
	s.Require().Equal("180a", services[0].UUID())

	_, err = dev.GetService("180f")
	s.Require().Error(err, "MUST drop services absent from the fresh enumeration")
}

// GOAL: Verify a cache replacement leaves displaced service handles open, so
// snapshots taken before the re-discovery stay usable.
//
// TEST SCENARIO:
//  1. Discover and snapshot the battery service handle
//  2. Re-discover with a different topology
//  3. Verify the displaced handle was not closed and only teardown closes
//     the currently cached handle
func (s *DeviceSuite) TestDiscoverServicesKeepsDisplacedHandlesOpen() {
	dev := s.newDevice()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	displaced, err := dev.GetService("180f")
	s.Require().NoError(err)
	mockDisplaced := displaced.(*testutils.MockService)

	replacement := testutils.NewMockService("180a")
	s.Dev.Topology = []*testutils.MockService{replacement}

	_, err = dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	s.Require().Zero(mockDisplaced.CloseCalls,
		"MUST leave displaced service handles open after a cache replacement")
	s.Require().NoError(displaced.Close(),
		"MUST leave the displaced handle usable by earlier snapshot holders")

	dev.Close()
	s.Require().Equal(1, replacement.CloseCalls,
		"MUST close the currently cached handle at teardown")
	s.Require().Equal(1, mockDisplaced.CloseCalls,
		"MUST NOT re-close a displaced handle at teardown")
}

// GOAL: Verify duplicate UUIDs in an enumeration keep the first occurrence.
func (s *DeviceSuite) TestDiscoverServicesFirstOccurrenceWins() {
	first := testutils.NewMockService("180f")
	first.Chars = []*testutils.MockCharacteristic{testutils.NewMockCharacteristic("2a19")}
	s.Dev.Topology = []*testutils.MockService{first, testutils.NewMockService("180f")}

	dev := s.newDevice()
	defer dev.Close()

	services, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(services, 1, "MUST deduplicate services by normalized UUID")

	svc, err := dev.GetService("180f")
	s.Require().NoError(err)
	chars, err := dev.GetCharacteristics(s.ctx, svc)
	s.Require().NoError(err)
	s.Require().Len(chars, 1, "MUST keep the first occurrence of a duplicated UUID")
}

// GOAL: Verify the three-way characteristic enumeration policy: success
// returns the set, a protocol error fails, any other non-success status
// returns an empty set without error.
func (s *DeviceSuite) TestGetCharacteristicsPolicy() {
	dev := s.newDevice()
	defer dev.Close()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	svc, err := dev.GetService("180f")
	s.Require().NoError(err)
	mockSvc := svc.(*testutils.MockService)

	chars, err := dev.GetCharacteristics(s.ctx, svc)
	s.Require().NoError(err, "MUST return the enumerated set on success")
	s.Require().Len(chars, 1)
	s.Require().Equal("2a19", chars[0].UUID())
	s.Require().Equal([]platform.CacheMode{platform.CacheUncached}, mockSvc.CharacteristicsCalls,
		"MUST always enumerate characteristics uncached")

	mockSvc.CharsStatus = platform.CommProtocolError
	mockSvc.CharsProtocolCode = 0x0a
	_, err = dev.GetCharacteristics(s.ctx, svc)
	s.Require().ErrorIs(err, peripheral.ErrProtocolError,
		"MUST fail when the peripheral actively rejects the request")
	s.Require().Contains(err.Error(), "0x0a")

	mockSvc.CharsStatus = platform.CommUnreachable
	chars, err = dev.GetCharacteristics(s.ctx, svc)
	s.Require().NoError(err,
		"MUST NOT fail on a non-protocol non-success status")
	s.Require().NotNil(chars)
	s.Require().Empty(chars, "MUST return an empty set when nothing is available")

	mockSvc.CharsStatus = platform.CommSuccess
	mockSvc.CharsErr = fmt.Errorf("link dropped")
	_, err = dev.GetCharacteristics(s.ctx, svc)
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST surface an enumeration call failure as an operation failure")

	_, err = dev.GetCharacteristics(s.ctx, nil)
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST reject a nil service")
}

// GOAL: Verify descriptor enumeration is strict: any non-success status is
// an error, with no empty-set leniency.
func (s *DeviceSuite) TestGetCharacteristicDescriptorsStrict() {
	dev := s.newDevice()
	defer dev.Close()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	svc, err := dev.GetService("180f")
	s.Require().NoError(err)
	chars, err := dev.GetCharacteristics(s.ctx, svc)
	s.Require().NoError(err)
	s.Require().Len(chars, 1)
	mockChar := chars[0].(*testutils.MockCharacteristic)

	descs, err := dev.GetCharacteristicDescriptors(s.ctx, chars[0])
	s.Require().NoError(err, "MUST return the enumerated descriptors on success")
	s.Require().Len(descs, 1)
	s.Require().Equal("2902", descs[0].UUID())
	s.Require().Equal([]platform.CacheMode{platform.CacheUncached}, mockChar.DescriptorsCalls,
		"MUST always enumerate descriptors uncached")

	mockChar.DescsStatus = platform.CommUnreachable
	_, err = dev.GetCharacteristicDescriptors(s.ctx, chars[0])
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST fail on any non-success status, with no empty-set leniency")

	mockChar.DescsStatus = platform.CommSuccess
	mockChar.DescsErr = fmt.Errorf("link dropped")
	_, err = dev.GetCharacteristicDescriptors(s.ctx, chars[0])
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST surface an enumeration call failure as an operation failure")

	_, err = dev.GetCharacteristicDescriptors(s.ctx, nil)
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST reject a nil characteristic")
}

// GOAL: Verify the full topology reachable through the public API matches
// the built peripheral.
func (s *DeviceSuite) TestTopologySnapshot() {
	dev := s.newDevice()
	defer dev.Close()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)

	type charNode struct {
		UUID        string   `json:"uuid"`
		Descriptors []string `json:"descriptors"`
	}
	type svcNode struct {
		UUID            string     `json:"uuid"`
		Characteristics []charNode `json:"characteristics"`
	}

	var snapshot struct {
		Services []svcNode `json:"services"`
	}
	for _, svc := range dev.Services() {
		node := svcNode{UUID: svc.UUID(), Characteristics: []charNode{}}
		chars, err := dev.GetCharacteristics(s.ctx, svc)
		s.Require().NoError(err)
		for _, ch := range chars {
			cn := charNode{UUID: ch.UUID(), Descriptors: []string{}}
			descs, err := dev.GetCharacteristicDescriptors(s.ctx, ch)
			s.Require().NoError(err)
			for _, desc := range descs {
				cn.Descriptors = append(cn.Descriptors, desc.UUID())
			}
			node.Characteristics = append(node.Characteristics, cn)
		}
		snapshot.Services = append(snapshot.Services, node)
	}

	testutils.AssertJSONEq(s.T(), `{
		"services": [
			{
				"uuid": "180f",
				"characteristics": [
					{"uuid": "2a19", "descriptors": ["2902"]}
				]
			}
		]
	}`, snapshot, "MUST expose the full built topology through the public API")
}

// GOAL: Verify Close tears down in reverse acquisition order and runs
// exactly once.
//
// TEST SCENARIO:
//  1. Construct and discover, populating the cache
//  2. Close
//  3. Verify both subscriptions released, the cached service closed, the
//     device handle closed, and the cache emptied
//  4. Close again and verify nothing runs twice
func (s *DeviceSuite) TestCloseReleasesEverything() {
	dev := s.newDevice()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	svc, err := dev.GetService("180f")
	s.Require().NoError(err)
	mockSvc := svc.(*testutils.MockService)

	dev.Close()

	s.Require().Zero(s.Dev.Session.ActiveSubscriptions(),
		"MUST release the max PDU size subscription")
	s.Require().Zero(s.Dev.ActiveSubscriptions(),
		"MUST release the connection status subscription")
	s.Require().Equal(1, mockSvc.CloseCalls,
		"MUST close every cached service handle")
	s.Require().Equal(1, s.Dev.CloseCalls,
		"MUST close the device handle last")
	s.Require().Empty(dev.Services(),
		"MUST empty the service cache on close")

	dev.Close()
	s.Require().Equal(1, s.Dev.CloseCalls, "MUST close at most once")
	s.Require().Equal(1, mockSvc.CloseCalls, "MUST close services at most once")
}

// GOAL: Verify every teardown step still runs when earlier steps fail, and
// no failure escapes to the caller.
//
// TEST SCENARIO:
//  1. Force the session unsubscribe, the service close and the device close
//     to fail
//  2. Close
//  3. Verify every later step still executed
func (s *DeviceSuite) TestCloseIsBestEffort() {
	dev := s.newDevice()

	_, err := dev.DiscoverServices(s.ctx)
	s.Require().NoError(err)
	svc, err := dev.GetService("180f")
	s.Require().NoError(err)
	mockSvc := svc.(*testutils.MockService)

	s.Dev.Session.UnsubscribeErr = fmt.Errorf("session gone")
	mockSvc.CloseErr = fmt.Errorf("service handle stuck")
	s.Dev.CloseErr = fmt.Errorf("device handle stuck")

	s.Require().NotPanics(dev.Close,
		"MUST swallow teardown failures instead of panicking")

	s.Require().Equal(1, s.Dev.Session.UnsubscribeCalls,
		"MUST attempt the max PDU size unsubscribe")
	s.Require().Equal(1, s.Dev.UnsubscribeCalls,
		"MUST still release the connection status subscription")
	s.Require().Equal(1, mockSvc.CloseCalls,
		"MUST still attempt the service handle close")
	s.Require().Equal(1, s.Dev.CloseCalls,
		"MUST still attempt the device handle close")
}

// GOAL: Verify events that arrive after Close are dropped without invoking
// the consumer handlers.
func (s *DeviceSuite) TestNoEventsAfterClose() {
	dev := s.newDevice()
	dev.Close()

	before := len(s.rec.connEvents())
	s.Dev.FireConnectionStatus(platform.StatusConnected)
	s.Dev.Session.FireMaxPDUSizeChanged(100)

	time.Sleep(50 * time.Millisecond)
	s.Require().Equal(before, len(s.rec.connEvents()),
		"MUST NOT deliver connection events after close")
	s.Require().Equal([]uint16{247}, s.rec.pduEvents(),
		"MUST NOT deliver max PDU size events after close")
}

// GOAL: Verify discovery and event delivery can run concurrently without
// deadlocking or corrupting the cache.
//
// TEST SCENARIO:
//  1. Hammer connection status transitions from a platform goroutine
//  2. Run repeated discoveries concurrently
//  3. Verify discovery results stay consistent and events were delivered
func (s *DeviceSuite) TestEventsDuringDiscovery() {
	dev := s.newDevice()
	defer dev.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.Dev.FireConnectionStatus(platform.StatusConnected)
			s.Dev.FireConnectionStatus(platform.StatusDisconnected)
		}
	}()

	for i := 0; i < 10; i++ {
		services, err := dev.DiscoverServices(s.ctx)
		s.Require().NoError(err, "MUST keep discovering while events are in flight")
		s.Require().Len(services, 1)
	}
	<-done

	s.Require().Eventually(func() bool {
		return len(s.rec.connEvents()) > 0
	}, time.Second, 10*time.Millisecond,
		"MUST deliver connection events alongside concurrent discovery")
}

// GOAL: Verify constructor argument validation.
func (s *DeviceSuite) TestConstructorValidation() {
	_, err := peripheral.New(s.ctx, nil, s.Addr,
		s.rec.onConnectionChanged, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed, "MUST reject a nil stack")

	_, err = peripheral.New(s.ctx, s.Stack, s.Addr,
		nil, s.rec.onMaxPDUSizeChanged, s.Logger)
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST reject a nil connection handler")

	_, err = peripheral.New(s.ctx, s.Stack, s.Addr,
		s.rec.onConnectionChanged, nil, s.Logger)
	s.Require().ErrorIs(err, peripheral.ErrOperationFailed,
		"MUST reject a nil max PDU size handler")
}

// GOAL: Verify errors.Is works across the sentinel kinds and wrapped
// messages stay inspectable.
func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("%w: extra context", peripheral.ErrDeviceNotFound)
	if !errors.Is(wrapped, peripheral.ErrDeviceNotFound) {
		t.Fatal("wrapped device-not-found MUST match its sentinel")
	}
	if errors.Is(wrapped, peripheral.ErrProtocolError) {
		t.Fatal("kinds MUST NOT match across sentinels")
	}
}
