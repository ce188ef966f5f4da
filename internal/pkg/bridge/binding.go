package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/capability"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/contxt"
	"github.com/anicoll/arduino-bridge/internal/pkg/metrics"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// serial runs jobs one after another in submission order without blocking
// the submitter.
type serial struct {
	mu   sync.Mutex
	tail chan struct{}
}

func (s *serial) Go(fn func()) {
	s.mu.Lock()
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// Wait blocks until every job submitted so far has finished.
func (s *serial) Wait() {
	s.mu.Lock()
	tail := s.tail
	s.mu.Unlock()
	if tail != nil {
		<-tail
	}
}

// binding ties one local service to its remote property.
type binding struct {
	e      *Engine
	key    model.Key
	svc    accessory.Service
	logger *zap.Logger

	// writes and refreshes of the service run in order
	queue          serial
	refreshPending atomic.Bool

	mu          sync.Mutex
	handlers    []func()
	stream      connection.Streamer
	unsubscribe func()
	closed      bool
}

func newBinding(e *Engine, key model.Key, svc accessory.Service) *binding {
	return &binding{
		e:   e,
		key: key,
		svc: svc,
		logger: e.logger.With(
			zap.String("thing_id", key.ThingID),
			zap.String("property_id", key.PropertyID),
			zap.String("property_type", key.PropertyType.String()),
		),
	}
}

func (b *binding) bind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.svc.Characteristics() {
		if c.Kind() == capability.Name {
			continue
		}
		b.handlers = append(b.handlers,
			c.OnSet(func(v any, origin accessory.Origin) {
				b.onSet(c, v, origin)
			}),
			c.OnGet(b.onGet),
		)
	}
}

// onSet acknowledges immediately and writes the service to the cloud in the
// background. Values the bridge applied itself are not written back.
func (b *binding) onSet(c accessory.Characteristic, v any, origin accessory.Origin) {
	if origin != accessory.Controller {
		return
	}
	values := accessory.Values(b.svc)
	b.queue.Go(func() {
		b.write(c.Kind(), v, values)
	})
}

func (b *binding) write(kind capability.Kind, v any, values []any) {
	logger := b.logger.With(zap.String("characteristic", string(kind)), zap.Any("value", v))

	payload, ok := capability.Encode(b.key.PropertyType, values)
	if !ok {
		logger.Debug("property type is not writable")
		return
	}

	ctx := contxt.NewContext(context.Background(), b.e.remoteTimeout)
	_, req, err := b.e.conn.EnsureConnected(ctx)
	if err == nil {
		err = req.SetProperty(ctx, b.key.ThingID, b.key.PropertyID, payload)
	}
	metrics.OutboundWrites.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		logger.Error("error setting property", zap.Error(err))
		return
	}
	logger.Info("set property", zap.Stringer("payload", payload))
}

// onGet schedules a refresh. The framework has already answered the read
// with the cached value.
func (b *binding) onGet() {
	if !b.refreshPending.CompareAndSwap(false, true) {
		return
	}
	b.queue.Go(b.refresh)
}

func (b *binding) refresh() {
	b.refreshPending.Store(false)

	ctx := contxt.NewContext(context.Background(), b.e.remoteTimeout)
	_, req, err := b.e.conn.EnsureConnected(ctx)
	if err != nil {
		b.logger.Warn("not connected yet, keeping cached value", zap.Error(err))
		return
	}
	p, err := req.GetProperty(ctx, b.key.ThingID, b.key.PropertyID)
	if err != nil {
		b.logger.Warn("error getting property, keeping cached value", zap.Error(err))
		return
	}
	b.apply(ctx, p.LastValue, "refresh")
}

// apply pushes a remote value into every characteristic that can represent it.
func (b *binding) apply(ctx context.Context, v model.Value, source string) {
	if v.IsNull() {
		return
	}
	for _, c := range b.svc.Characteristics() {
		if c.Kind() == capability.Name {
			continue
		}
		if local, ok := capability.Decode(b.key.PropertyType, c.Kind(), v); ok {
			c.SetValue(local)
		}
	}
	metrics.InboundUpdates.WithLabelValues(source).Inc()
	b.logger.Debug("updated service", zap.String("source", source), zap.Stringer("value", v))

	reading := model.Reading{
		ThingID:    b.key.ThingID,
		PropertyID: b.key.PropertyID,
		Name:       b.svc.Name(),
		Type:       b.key.PropertyType,
		Value:      v,
		TimeStamp:  time.Now(),
	}
	if err := b.e.publish(ctx, reading); err != nil {
		b.logger.Warn("failed to publish reading", zap.Error(err))
	}
}

// subscribe moves the binding's subscription onto stream.
func (b *binding) subscribe(ctx context.Context, stream connection.Streamer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.stream == stream {
		return
	}
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.stream, b.unsubscribe = nil, nil
	}

	unsubscribe, err := stream.SubscribeProperty(ctx, b.key.ThingID, b.key.PropertyName, func(v model.Value) {
		b.apply(context.Background(), v, "stream")
	})
	if err != nil {
		b.logger.Error("error subscribing to property value", zap.Error(err))
		return
	}
	b.stream, b.unsubscribe = stream, unsubscribe
}

func (b *binding) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, unregister := range b.handlers {
		unregister()
	}
	b.handlers = nil
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.stream, b.unsubscribe = nil, nil
	}
}
