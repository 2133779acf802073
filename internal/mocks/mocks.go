package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
)

// -- Driver Mock --

// MockDriver mocks schemas.Driver for loop, executor, and capture tests.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) PageSource(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) CurrentPackage(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Tap(ctx context.Context, p schemas.Point) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockDriver) SendKeys(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockDriver) PressBack(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) ActivateApp(ctx context.Context, packageName string) error {
	args := m.Called(ctx, packageName)
	return args.Error(0)
}

func (m *MockDriver) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- LLM Client Mock --

// MockLLMClient mocks schemas.LLMClient for decision engine and judge tests.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (schemas.GenerationResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.GenerationResult), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
