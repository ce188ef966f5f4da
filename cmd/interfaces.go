package cmd

import (
	"context"
	"time"

	"github.com/anicoll/arduino-bridge/internal/pkg/bridge"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// ConnectionManager is what serve needs from connection.Manager.
type ConnectionManager interface {
	Status() connection.Status
	Close()
}

// BridgeEngine is what serve needs from bridge.Engine.
type BridgeEngine interface {
	Discover(ctx context.Context) error
	Accessories() []bridge.AccessoryStatus
	Close()
}

// AccessoryHost serves the bridged accessories to controllers.
type AccessoryHost interface {
	Run(ctx context.Context) error
}

// ReadingStore is the optional reading history.
type ReadingStore interface {
	GetReadings(ctx context.Context, propertyID string, from, to *time.Time) ([]model.Reading, error)
	GetLatestReadings(ctx context.Context) ([]model.Reading, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

type services struct {
	conn   ConnectionManager
	bridge BridgeEngine
	host   AccessoryHost
	store  ReadingStore
}
