package publisher

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

var (
	mu                   sync.RWMutex
	registeredPublishers = make(map[string]publisher)
	lastValues           sync.Map
)

type publisher interface {
	// Write stores readings that changed since they were last published.
	Write(ctx context.Context, readings []model.Reading) error
	RegisterProperty(ctx context.Context, property model.Property) error
}

func RegisterPublisher(name string, p publisher) error {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registeredPublishers[name]; ok {
		return errAlreadyRegistered
	}
	registeredPublishers[name] = p
	return nil
}

func publishers() map[string]publisher {
	mu.RLock()
	defer mu.RUnlock()
	out := make(map[string]publisher, len(registeredPublishers))
	for name, p := range registeredPublishers {
		out[name] = p
	}
	return out
}

// PublishReadings fans readings out to every registered publisher, skipping
// values that did not change. A value counts as published only once every
// publisher has accepted it, so a failed write is retried with the next reading.
func PublishReadings(ctx context.Context, readings ...model.Reading) error {
	data := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if !changed(r) {
			continue
		}
		data = append(data, r)
	}
	if len(data) == 0 {
		return nil
	}

	var errs []error
	for name, p := range publishers() {
		if err := p.Write(ctx, data); err != nil {
			zap.L().Error("failed to publish readings", zap.Error(err), zap.String("publisher", name))
			errs = append(errs, err)
			continue
		}
		zap.L().Debug("published readings", zap.Int("count", len(data)), zap.String("publisher", name))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, r := range data {
		remember(r)
	}
	return nil
}

func RegisterProperty(ctx context.Context, property model.Property) error {
	var errs []error
	for name, p := range publishers() {
		if err := p.RegisterProperty(ctx, property); err != nil {
			zap.L().Error("failed to register property", zap.Error(err), zap.String("property_id", property.ID), zap.String("publisher", name))
			errs = append(errs, err)
			continue
		}
		zap.L().Debug("registered property", zap.String("property_id", property.ID), zap.String("publisher", name))
	}
	return errors.Join(errs...)
}

func changed(r model.Reading) bool {
	old, exists := lastValues.Load(r.PropertyID)
	return !exists || !old.(model.Value).Equal(r.Value)
}

func remember(r model.Reading) {
	if _, loaded := lastValues.Swap(r.PropertyID, r.Value); !loaded {
		zap.L().Info("first reading", zap.String("thing_id", r.ThingID), zap.String("property", r.Name), zap.Stringer("value", r.Value))
	}
}
