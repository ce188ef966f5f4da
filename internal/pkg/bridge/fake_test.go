package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/capability"
	"github.com/anicoll/arduino-bridge/internal/pkg/connection"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

type fakeCharacteristic struct {
	kind capability.Kind
	rng  capability.Range

	mu     sync.Mutex
	val    any
	nextID int
	sets   map[int]func(any, accessory.Origin)
	gets   map[int]func()
}

func (c *fakeCharacteristic) Kind() capability.Kind { return c.kind }

func (c *fakeCharacteristic) Value() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.val
}

func (c *fakeCharacteristic) SetValue(v any) { c.set(v, accessory.Internal) }

// controllerSet simulates a write from a paired controller.
func (c *fakeCharacteristic) controllerSet(v any) { c.set(v, accessory.Controller) }

// controllerGet answers with the cached value, then notifies get handlers.
func (c *fakeCharacteristic) controllerGet() any {
	v := c.Value()
	c.mu.Lock()
	fns := make([]func(), 0, len(c.gets))
	for _, fn := range c.gets {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return v
}

func (c *fakeCharacteristic) set(v any, origin accessory.Origin) {
	c.mu.Lock()
	c.val = v
	fns := make([]func(any, accessory.Origin), 0, len(c.sets))
	for _, fn := range c.sets {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(v, origin)
	}
}

func (c *fakeCharacteristic) SetRange(r capability.Range) { c.rng = r }

func (c *fakeCharacteristic) OnSet(fn func(any, accessory.Origin)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.sets[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.sets, id)
	}
}

func (c *fakeCharacteristic) OnGet(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.gets[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.gets, id)
	}
}

func (c *fakeCharacteristic) handlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets) + len(c.gets)
}

type fakeService struct {
	name    string
	typ     capability.ServiceType
	subtype string
	cs      []*fakeCharacteristic
}

func (s *fakeService) Name() string                 { return s.name }
func (s *fakeService) Type() capability.ServiceType { return s.typ }
func (s *fakeService) Subtype() string              { return s.subtype }
func (s *fakeService) Characteristics() []accessory.Characteristic {
	out := make([]accessory.Characteristic, len(s.cs))
	for i, c := range s.cs {
		out[i] = c
	}
	return out
}

func (s *fakeService) characteristic(kind capability.Kind) *fakeCharacteristic {
	for _, c := range s.cs {
		if c.kind == kind {
			return c
		}
	}
	return nil
}

type fakeAccessory struct {
	info     accessory.Info
	services []*fakeService
}

func (a *fakeAccessory) Name() string         { return a.info.Name }
func (a *fakeAccessory) Info() accessory.Info { return a.info }
func (a *fakeAccessory) Services() []accessory.Service {
	out := make([]accessory.Service, len(a.services))
	for i, s := range a.services {
		out[i] = s
	}
	return out
}

func (a *fakeAccessory) Service(name string) (accessory.Service, bool) {
	for _, s := range a.services {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

func (a *fakeAccessory) AddService(name string, typ capability.ServiceType, subtype string, kinds []capability.Kind) (accessory.Service, error) {
	s := &fakeService{name: name, typ: typ, subtype: subtype}
	for _, k := range kinds {
		c := &fakeCharacteristic{
			kind: k,
			sets: map[int]func(any, accessory.Origin){},
			gets: map[int]func(){},
		}
		if k == capability.Name {
			c.val = name
		}
		s.cs = append(s.cs, c)
	}
	a.services = append(a.services, s)
	return s, nil
}

type fakeFramework struct {
	registered   map[string]*fakeAccessory
	registers    int
	updates      int
	unregistered []string
}

func newFakeFramework() *fakeFramework {
	return &fakeFramework{registered: map[string]*fakeAccessory{}}
}

func (f *fakeFramework) NewAccessory(info accessory.Info) accessory.Accessory {
	return &fakeAccessory{info: info}
}

func (f *fakeFramework) Register(a accessory.Accessory) error {
	f.registers++
	f.registered[a.Name()] = a.(*fakeAccessory)
	return nil
}

func (f *fakeFramework) Update(accessory.Accessory) error {
	f.updates++
	return nil
}

func (f *fakeFramework) Unregister(a accessory.Accessory) error {
	f.unregistered = append(f.unregistered, a.Name())
	delete(f.registered, a.Name())
	return nil
}

func (f *fakeFramework) service(name string) *fakeService {
	a, ok := f.registered[name]
	if !ok {
		return nil
	}
	s, _ := a.Service(name)
	return s.(*fakeService)
}

type subscription struct {
	thingID string
	name    string
	fn      func(model.Value)
	active  bool
}

type fakeStream struct {
	mu   sync.Mutex
	subs []*subscription
}

func (s *fakeStream) Connect(context.Context) error   { return nil }
func (s *fakeStream) Reconnect(context.Context) error { return nil }
func (s *fakeStream) Disconnect()                     {}
func (s *fakeStream) IsConnected() bool               { return true }

func (s *fakeStream) SubscribeProperty(_ context.Context, thingID, name string, fn func(model.Value)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &subscription{thingID: thingID, name: name, fn: fn, active: true}
	s.subs = append(s.subs, sub)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.active = false
	}, nil
}

// publish delivers v to every active subscription of the property.
func (s *fakeStream) publish(thingID, name string, v model.Value) {
	s.mu.Lock()
	var fns []func(model.Value)
	for _, sub := range s.subs {
		if sub.active && sub.thingID == thingID && sub.name == name {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (s *fakeStream) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.active {
			n++
		}
	}
	return n
}

type MockRequester struct {
	mu    sync.Mutex
	calls []string

	ListThingsFunc     func(ctx context.Context) ([]model.Thing, error)
	ListPropertiesFunc func(ctx context.Context, thingID string) ([]model.Property, error)
	GetPropertyFunc    func(ctx context.Context, thingID, propertyID string) (model.Property, error)
	SetPropertyFunc    func(ctx context.Context, thingID, propertyID string, value model.Value) error
}

func (m *MockRequester) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockRequester) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRequester) ListThings(ctx context.Context) ([]model.Thing, error) {
	m.record("list_things")
	return m.ListThingsFunc(ctx)
}

func (m *MockRequester) ListProperties(ctx context.Context, thingID string) ([]model.Property, error) {
	m.record("list_properties")
	return m.ListPropertiesFunc(ctx, thingID)
}

func (m *MockRequester) GetProperty(ctx context.Context, thingID, propertyID string) (model.Property, error) {
	m.record("get")
	return m.GetPropertyFunc(ctx, thingID, propertyID)
}

func (m *MockRequester) SetProperty(ctx context.Context, thingID, propertyID string, value model.Value) error {
	m.record("set")
	return m.SetPropertyFunc(ctx, thingID, propertyID, value)
}

func (m *MockRequester) UpdateToken(string) {}

type fakeConnector struct {
	mu     sync.Mutex
	stream *fakeStream
	req    *MockRequester
	err    error
}

func (c *fakeConnector) EnsureConnected(context.Context) (connection.Streamer, connection.Requester, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.stream, c.req, nil
}

var errUnavailable = errors.New("unavailable")
