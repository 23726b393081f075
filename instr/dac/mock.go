package dac

import (
	"github.com/stretchr/testify/mock"
)

// MockProcessor is a testify-backed Processor for tests.
type MockProcessor struct {
	mock.Mock
}

var _ Processor = (*MockProcessor)(nil)

func NewMockProcessor() *MockProcessor {
	return &MockProcessor{}
}

func (m *MockProcessor) StartProcess(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProcessor) StopProcess(num int) error {
	args := m.Called(num)
	return args.Error(0)
}

func (m *MockProcessor) SetPar(index, value int) error {
	args := m.Called(index, value)
	return args.Error(0)
}

func (m *MockProcessor) GetPar(index int) (int, error) {
	args := m.Called(index)
	return args.Int(0), args.Error(1)
}
