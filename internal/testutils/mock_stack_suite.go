package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/bleperiph/pkg/platform"
)

// MockStackSuite is the base suite for tests that drive the public API
// against a mocked platform stack. Each test gets a fresh stack and device
// built from BuilderFactory; suites override the factory to change the
// peripheral topology.
type MockStackSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// BuilderFactory produces the per-test peripheral. Defaults to a
	// battery service profile when unset.
	BuilderFactory func() *PeripheralBuilder

	Builder *PeripheralBuilder
	Stack   *MockStack
	Dev     *MockDevice
	Addr    platform.Addr
}

func (s *MockStackSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	factory := s.BuilderFactory
	if factory == nil {
		factory = DefaultPeripheral
	}

	s.Builder = factory()
	s.Stack, s.Dev = s.Builder.Build()
	s.Addr = s.Builder.Addr()
}

// DefaultPeripheral is a battery service peripheral with one characteristic
// and its CCCD.
func DefaultPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder().
		WithService("180f").
		WithCharacteristic("2a19").
		WithDescriptor("2902")
}
