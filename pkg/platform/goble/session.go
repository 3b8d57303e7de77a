//go:build darwin

package goble

import (
	"fmt"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleperiph/pkg/platform"
)

const (
	// DefaultRequestedMTU is the MTU requested during session establishment.
	// 517 is the ATT maximum; the peripheral negotiates downward from there.
	DefaultRequestedMTU = 517

	// defaultATTMTU is the BLE 4.0 baseline used when MTU exchange is not
	// supported by the stack or peripheral.
	defaultATTMTU = 23
)

// Session implements platform.Session. go-ble negotiates the MTU once at
// establishment and never renegotiates mid-session, so subscribers receive no
// live deliveries here; the registry keeps the contract uniform across
// platform implementations.
type Session struct {
	dev    *Device
	logger *logrus.Logger

	maxPDU    atomic.Uint32
	subs      *hashmap.Map[uint64, func(uint16)]
	nextToken atomic.Uint64
}

func newSession(dev *Device, logger *logrus.Logger) (*Session, error) {
	if dev.closed.Load() {
		return nil, fmt.Errorf("device handle %s is closed", dev.addr)
	}

	s := &Session{
		dev:    dev,
		logger: logger,
		subs:   hashmap.New[uint64, func(uint16)](),
	}

	txMTU, err := dev.client.ExchangeMTU(DefaultRequestedMTU)
	if err != nil {
		// Some stacks reject MTU negotiation outright; that is not a
		// session failure, the baseline ATT MTU applies.
		logger.WithField("address", dev.addr.String()).WithError(err).Debug("MTU exchange failed, using default ATT MTU")
		txMTU = defaultATTMTU
	}
	s.maxPDU.Store(uint32(uint16(txMTU)))

	logger.WithFields(logrus.Fields{
		"address":      dev.addr.String(),
		"max_pdu_size": txMTU,
	}).Debug("GATT session established")

	return s, nil
}

// MaxPDUSize returns the negotiated maximum PDU size.
func (s *Session) MaxPDUSize() uint16 {
	return uint16(s.maxPDU.Load())
}

// SubscribeMaxPDUSizeChanged registers fn for PDU size changes.
func (s *Session) SubscribeMaxPDUSizeChanged(fn func(uint16)) (platform.Token, error) {
	if fn == nil {
		return 0, fmt.Errorf("max pdu size callback is required")
	}

	tok := s.nextToken.Add(1)
	s.subs.Set(tok, fn)
	return platform.Token(tok), nil
}

// UnsubscribeMaxPDUSizeChanged removes a registration by token.
func (s *Session) UnsubscribeMaxPDUSizeChanged(tok platform.Token) error {
	if !s.subs.Del(uint64(tok)) {
		return fmt.Errorf("unknown max pdu size token %d", tok)
	}
	return nil
}
