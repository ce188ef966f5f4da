package connection

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/anicoll/arduino-bridge/internal/pkg/auth"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

type MockProvider struct {
	calls       atomic.Int32
	AcquireFunc func(ctx context.Context) (auth.Credential, error)
}

func (m *MockProvider) Acquire(ctx context.Context) (auth.Credential, error) {
	m.calls.Add(1)
	return m.AcquireFunc(ctx)
}

type MockStreamer struct {
	connects      atomic.Int32
	reconnects    atomic.Int32
	disconnects   atomic.Int32
	onLost        func(error)
	token         func() string
	presented     []string
	ConnectFunc   func(ctx context.Context) error
	ReconnectFunc func(ctx context.Context) error
}

func (m *MockStreamer) Connect(ctx context.Context) error {
	m.connects.Add(1)
	if m.token != nil {
		m.presented = append(m.presented, m.token())
	}
	if m.ConnectFunc == nil {
		return nil
	}
	return m.ConnectFunc(ctx)
}

func (m *MockStreamer) Reconnect(ctx context.Context) error {
	m.reconnects.Add(1)
	if m.ReconnectFunc == nil {
		return nil
	}
	return m.ReconnectFunc(ctx)
}

func (m *MockStreamer) Disconnect()       { m.disconnects.Add(1) }
func (m *MockStreamer) IsConnected() bool { return true }
func (m *MockStreamer) SubscribeProperty(context.Context, string, string, func(model.Value)) (func(), error) {
	return func() {}, nil
}

type MockRequester struct {
	mu     sync.Mutex
	tokens []string
	update chan string
}

func newMockRequester(token string) *MockRequester {
	return &MockRequester{tokens: []string{token}, update: make(chan string, 8)}
}

func (m *MockRequester) ListThings(context.Context) ([]model.Thing, error) { return nil, nil }
func (m *MockRequester) ListProperties(context.Context, string) ([]model.Property, error) {
	return nil, nil
}
func (m *MockRequester) GetProperty(context.Context, string, string) (model.Property, error) {
	return model.Property{}, nil
}
func (m *MockRequester) SetProperty(context.Context, string, string, model.Value) error { return nil }

func (m *MockRequester) UpdateToken(token string) {
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
	m.update <- token
}
