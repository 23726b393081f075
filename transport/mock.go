package transport

import (
	"github.com/stretchr/testify/mock"
)

// MockChannel is a testify-backed Channel for driver tests.
type MockChannel struct {
	mock.Mock
}

var _ Channel = (*MockChannel)(nil)

func NewMockChannel() *MockChannel {
	return &MockChannel{}
}

func (m *MockChannel) Write(cmd string) error {
	args := m.Called(cmd)
	return args.Error(0)
}

func (m *MockChannel) Query(cmd string) (string, error) {
	args := m.Called(cmd)
	return args.String(0), args.Error(1)
}

func (m *MockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}
