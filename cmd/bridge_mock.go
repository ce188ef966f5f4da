package cmd

import (
	"context"
	"time"

	"github.com/anicoll/arduino-bridge/internal/pkg/bridge"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// MockConnectionManager is a mock implementation of the ConnectionManager interface.
type MockConnectionManager struct {
	StatusFunc func() connection.Status
	CloseFunc  func()
}

func (m *MockConnectionManager) Status() connection.Status {
	if m.StatusFunc != nil {
		return m.StatusFunc()
	}
	return connection.Status{State: connection.StateUnconnected.String()}
}

func (m *MockConnectionManager) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

// MockBridgeEngine is a mock implementation of the BridgeEngine interface.
type MockBridgeEngine struct {
	DiscoverFunc    func(ctx context.Context) error
	AccessoriesFunc func() []bridge.AccessoryStatus
	CloseFunc       func()
}

func (m *MockBridgeEngine) Discover(ctx context.Context) error {
	if m.DiscoverFunc != nil {
		return m.DiscoverFunc(ctx)
	}
	return nil
}

func (m *MockBridgeEngine) Accessories() []bridge.AccessoryStatus {
	if m.AccessoriesFunc != nil {
		return m.AccessoriesFunc()
	}
	return nil
}

func (m *MockBridgeEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

// MockAccessoryHost is a mock implementation of the AccessoryHost interface.
type MockAccessoryHost struct {
	RunFunc func(ctx context.Context) error
}

func (m *MockAccessoryHost) Run(ctx context.Context) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	<-ctx.Done()
	return nil
}

// MockReadingStore is a mock implementation of the ReadingStore interface.
type MockReadingStore struct {
	GetReadingsFunc       func(ctx context.Context, propertyID string, from, to *time.Time) ([]model.Reading, error)
	GetLatestReadingsFunc func(ctx context.Context) ([]model.Reading, error)
	CleanupFunc           func(ctx context.Context, retention time.Duration) (int64, error)
}

func (m *MockReadingStore) GetReadings(ctx context.Context, propertyID string, from, to *time.Time) ([]model.Reading, error) {
	if m.GetReadingsFunc != nil {
		return m.GetReadingsFunc(ctx, propertyID, from, to)
	}
	return nil, nil
}

func (m *MockReadingStore) GetLatestReadings(ctx context.Context) ([]model.Reading, error) {
	if m.GetLatestReadingsFunc != nil {
		return m.GetLatestReadingsFunc(ctx)
	}
	return nil, nil
}

func (m *MockReadingStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, retention)
	}
	return 0, nil
}
