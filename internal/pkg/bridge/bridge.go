package bridge

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/capability"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/metrics"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
	"github.com/anicoll/arduino-bridge/internal/pkg/publisher"
)

const (
	defaultRemoteTimeout = 30 * time.Second
	listConcurrency      = 4
)

type connector interface {
	EnsureConnected(ctx context.Context) (connection.Streamer, connection.Requester, error)
}

type entry struct {
	acc      accessory.Accessory
	reviewed bool
	bindings []*binding
}

// Engine keeps the local accessories in step with the remote properties.
type Engine struct {
	conn          connector
	fw            accessory.Framework
	logger        *zap.Logger
	remoteTimeout time.Duration
	publish       func(ctx context.Context, readings ...model.Reading) error

	passes singleflight.Group

	mu          sync.Mutex
	accessories map[string]*entry
	stream      connection.Streamer
}

type Option func(*Engine)

// WithRemoteTimeout bounds each fire-and-forget remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.remoteTimeout = d
	}
}

func New(conn connector, fw accessory.Framework, opts ...Option) *Engine {
	e := &Engine{
		conn:          conn,
		fw:            fw,
		logger:        zap.L(),
		remoteTimeout: defaultRemoteTimeout,
		publish:       publisher.PublishReadings,
		accessories:   map[string]*entry{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover lists the remote inventory and reconciles it. Concurrent calls
// share one pass.
func (e *Engine) Discover(ctx context.Context) error {
	_, err, _ := e.passes.Do("discover", func() (any, error) {
		return nil, e.discover(ctx)
	})
	return err
}

func (e *Engine) discover(ctx context.Context) error {
	_, req, err := e.conn.EnsureConnected(ctx)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	things, err := req.ListThings(ctx)
	if err != nil {
		return fmt.Errorf("listing things: %w", err)
	}

	var (
		mu       sync.Mutex
		props    = make(map[string][]model.Property, len(things))
		complete atomic.Bool
		g        errgroup.Group
	)
	complete.Store(true)
	g.SetLimit(listConcurrency)
	for _, thing := range things {
		g.Go(func() error {
			ps, err := req.ListProperties(ctx, thing.ID)
			if err != nil {
				e.logger.Error("failed to list properties", zap.Error(err), zap.String("thing_id", thing.ID))
				complete.Store(false)
				return nil
			}
			mu.Lock()
			props[thing.ID] = ps
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	e.reconcile(ctx, things, props, complete.Load())
	return nil
}

// Reconcile applies one full discovery pass.
func (e *Engine) Reconcile(ctx context.Context, things []model.Thing, propertiesByThing map[string][]model.Property) {
	e.reconcile(ctx, things, propertiesByThing, true)
}

// reconcile only removes accessories when the pass saw every thing's properties.
func (e *Engine) reconcile(ctx context.Context, things []model.Thing, propertiesByThing map[string][]model.Property, complete bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ent := range e.accessories {
		ent.reviewed = false
	}

	added := 0
	for _, thing := range things {
		for _, p := range propertiesByThing[thing.ID] {
			if p.ThingID == "" {
				p.ThingID = thing.ID
			}
			if e.addProperty(ctx, thing, p) {
				added++
			}
		}
	}

	removed := 0
	if complete {
		removed = e.removeUnreviewed()
	} else {
		e.logger.Warn("discovery pass incomplete, skipping removal")
	}

	e.subscribeAll(ctx)
	metrics.Accessories.Set(float64(len(e.accessories)))
	e.logger.Info("reconciled accessories",
		zap.Int("things", len(things)),
		zap.Int("accessories", len(e.accessories)),
		zap.Int("services_added", added),
		zap.Int("accessories_removed", removed),
	)
}

// addProperty reports whether a service was added. Must hold e.mu.
func (e *Engine) addProperty(ctx context.Context, thing model.Thing, p model.Property) bool {
	profile, ok := capability.Lookup(p.Type)
	if !ok {
		e.logger.Debug("skipping unmapped property", zap.String("property_id", p.ID), zap.String("property_type", p.Type.String()))
		return false
	}
	key := model.NewKey(thing, p)
	if err := key.Validate(); err != nil {
		e.logger.Warn("skipping property", zap.Error(err), zap.String("property_id", p.ID))
		return false
	}

	ent, exists := e.accessories[p.Name]
	if !exists {
		ent = &entry{acc: e.fw.NewAccessory(accessory.Info{
			Name:         p.Name,
			Manufacturer: accessory.Manufacturer,
			Model:        accessory.Model,
			SerialNumber: slug.Make(p.Name),
		})}
	}
	ent.reviewed = true

	// services are matched by display name, so a changed capability set is
	// never applied to an existing service
	if _, found := ent.acc.Service(p.Name); found {
		return false
	}

	svc, err := ent.acc.AddService(p.Name, profile.Service, key.String(), profile.Characteristics)
	if err != nil {
		e.logger.Error("failed to add service", zap.Error(err), zap.String("property_id", p.ID))
		return false
	}
	for _, c := range svc.Characteristics() {
		if r, ok := capability.Props(c.Kind()); ok {
			c.SetRange(r)
		}
	}

	b := newBinding(e, key, svc)
	b.apply(ctx, p.LastValue, "discovery")
	b.bind()
	ent.bindings = append(ent.bindings, b)

	if !exists {
		if err := e.fw.Register(ent.acc); err != nil {
			e.logger.Error("failed to register accessory", zap.Error(err), zap.String("accessory", p.Name))
			b.close()
			return false
		}
		e.accessories[p.Name] = ent
	} else if err := e.fw.Update(ent.acc); err != nil {
		e.logger.Error("failed to update accessory", zap.Error(err), zap.String("accessory", p.Name))
	}

	if err := publisher.RegisterProperty(ctx, p); err != nil {
		e.logger.Warn("failed to record property", zap.Error(err), zap.String("property_id", p.ID))
	}
	return true
}

// removeUnreviewed must hold e.mu.
func (e *Engine) removeUnreviewed() int {
	stale := lo.PickBy(e.accessories, func(_ string, ent *entry) bool {
		return !ent.reviewed
	})
	for name, ent := range stale {
		for _, b := range ent.bindings {
			b.close()
		}
		if err := e.fw.Unregister(ent.acc); err != nil {
			e.logger.Error("failed to unregister accessory", zap.Error(err), zap.String("accessory", name))
		}
		delete(e.accessories, name)
		e.logger.Info("removed accessory", zap.String("accessory", name))
	}
	return len(stale)
}

// subscribeAll moves every binding onto the current stream. Must hold e.mu.
func (e *Engine) subscribeAll(ctx context.Context) {
	stream, _, err := e.conn.EnsureConnected(ctx)
	if err != nil {
		e.logger.Error("streaming client unavailable", zap.Error(err))
		return
	}
	e.stream = stream
	for _, ent := range e.accessories {
		for _, b := range ent.bindings {
			b.subscribe(ctx, stream)
		}
	}
}

// Close releases every binding. Accessories stay registered.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.accessories {
		for _, b := range ent.bindings {
			b.close()
		}
	}
}

type ServiceStatus struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Key    string         `json:"key"`
	Values map[string]any `json:"values"`
}

type AccessoryStatus struct {
	Name         string          `json:"name"`
	SerialNumber string          `json:"serial_number"`
	Services     []ServiceStatus `json:"services"`
}

// Accessories snapshots the managed accessories ordered by name.
func (e *Engine) Accessories() []AccessoryStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]AccessoryStatus, 0, len(e.accessories))
	for _, name := range slices.Sorted(maps.Keys(e.accessories)) {
		acc := e.accessories[name].acc
		st := AccessoryStatus{Name: name, SerialNumber: acc.Info().SerialNumber}
		for _, s := range acc.Services() {
			values := map[string]any{}
			for _, c := range s.Characteristics() {
				values[string(c.Kind())] = c.Value()
			}
			st.Services = append(st.Services, ServiceStatus{
				Name:   s.Name(),
				Type:   string(s.Type()),
				Key:    s.Subtype(),
				Values: values,
			})
		}
		out = append(out, st)
	}
	return out
}
