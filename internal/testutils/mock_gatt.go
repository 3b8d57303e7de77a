package testutils

import (
	"context"
	"sync"

	"github.com/srg/bleperiph/pkg/platform"
)

// MockService implements platform.Service with scripted characteristic
// enumeration outcomes.
type MockService struct {
	mu   sync.Mutex
	uuid string

	Chars                []*MockCharacteristic
	CharsStatus          platform.CommunicationStatus
	CharsProtocolCode    uint8
	CharsErr             error
	CharacteristicsCalls []platform.CacheMode

	CloseErr   error
	CloseCalls int
}

func NewMockService(uuid string) *MockService {
	return &MockService{
		uuid:        platform.NormalizeUUID(uuid),
		CharsStatus: platform.CommSuccess,
	}
}

func (s *MockService) UUID() string { return s.uuid }

func (s *MockService) Characteristics(_ context.Context, mode platform.CacheMode) (*platform.CharacteristicsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CharacteristicsCalls = append(s.CharacteristicsCalls, mode)
	if s.CharsErr != nil {
		return nil, s.CharsErr
	}

	result := &platform.CharacteristicsResult{
		Status:       s.CharsStatus,
		ProtocolCode: s.CharsProtocolCode,
	}
	if s.CharsStatus == platform.CommSuccess {
		for _, c := range s.Chars {
			result.Characteristics = append(result.Characteristics, c)
		}
	}
	return result, nil
}

func (s *MockService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CloseCalls++
	return s.CloseErr
}

// MockCharacteristic implements platform.Characteristic with scripted
// descriptor enumeration outcomes.
type MockCharacteristic struct {
	mu   sync.Mutex
	uuid string

	Descs             []*MockDescriptor
	DescsStatus       platform.CommunicationStatus
	DescsProtocolCode uint8
	DescsErr          error
	DescriptorsCalls  []platform.CacheMode
}

func NewMockCharacteristic(uuid string) *MockCharacteristic {
	return &MockCharacteristic{
		uuid:        platform.NormalizeUUID(uuid),
		DescsStatus: platform.CommSuccess,
	}
}

func (c *MockCharacteristic) UUID() string { return c.uuid }

func (c *MockCharacteristic) Descriptors(_ context.Context, mode platform.CacheMode) (*platform.DescriptorsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.DescriptorsCalls = append(c.DescriptorsCalls, mode)
	if c.DescsErr != nil {
		return nil, c.DescsErr
	}

	result := &platform.DescriptorsResult{
		Status:       c.DescsStatus,
		ProtocolCode: c.DescsProtocolCode,
	}
	if c.DescsStatus == platform.CommSuccess {
		for _, d := range c.Descs {
			result.Descriptors = append(result.Descriptors, d)
		}
	}
	return result, nil
}

// MockDescriptor implements platform.Descriptor.
type MockDescriptor struct {
	uuid string
}

func NewMockDescriptor(uuid string) *MockDescriptor {
	return &MockDescriptor{uuid: platform.NormalizeUUID(uuid)}
}

func (d *MockDescriptor) UUID() string { return d.uuid }
