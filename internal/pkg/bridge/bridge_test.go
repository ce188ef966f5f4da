package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/capability"
	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

var thing = model.Thing{ID: "thing-1", Name: "Living room", DeviceID: "device-1"}

func property(id, name string, typ model.PropertyType, last model.Value) model.Property {
	return model.Property{ID: id, ThingID: thing.ID, Name: name, Variable: name, Type: typ, LastValue: last}
}

type testBridge struct {
	engine   *Engine
	fw       *fakeFramework
	conn     *fakeConnector
	req      *MockRequester
	mu       sync.Mutex
	readings []model.Reading
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	zap.ReplaceGlobals(zaptest.NewLogger(t))

	tb := &testBridge{fw: newFakeFramework()}
	tb.req = &MockRequester{
		SetPropertyFunc: func(context.Context, string, string, model.Value) error { return nil },
		GetPropertyFunc: func(context.Context, string, string) (model.Property, error) {
			return model.Property{}, errUnavailable
		},
	}
	tb.conn = &fakeConnector{stream: &fakeStream{}, req: tb.req}
	tb.engine = New(tb.conn, tb.fw)
	tb.engine.publish = func(_ context.Context, readings ...model.Reading) error {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.readings = append(tb.readings, readings...)
		return nil
	}
	t.Cleanup(tb.engine.Close)
	return tb
}

func (tb *testBridge) reconcile(props ...model.Property) {
	tb.engine.Reconcile(context.Background(), []model.Thing{thing}, map[string][]model.Property{thing.ID: props})
}

// wait drains the job queue of the named accessory's bindings.
func (tb *testBridge) wait(name string) {
	tb.engine.mu.Lock()
	ent := tb.engine.accessories[name]
	tb.engine.mu.Unlock()
	for _, b := range ent.bindings {
		b.queue.Wait()
	}
}

func TestReconcile_CreatesAccessories(t *testing.T) {
	tb := newTestBridge(t)

	tb.reconcile(
		property("p1", "Desk lamp", model.HomeDimmedLight, model.Composite(
			model.Field{Name: "swi", Value: model.Bool(true)},
			model.Field{Name: "bri", Value: model.Number(70)},
		)),
		property("p2", "Door", model.HomeContactSensor, model.Bool(false)),
		property("p3", "Thermostat", "HOME_THERMOSTAT", model.Number(20)),
	)

	assert.Equal(t, 2, tb.fw.registers)
	assert.Len(t, tb.fw.registered, 2)

	lamp := tb.fw.registered["Desk lamp"]
	require.NotNil(t, lamp)
	assert.Equal(t, accessory.Info{
		Name:         "Desk lamp",
		Manufacturer: "Arduino",
		Model:        "IoTCloudBridgedAccessory",
		SerialNumber: "desk-lamp",
	}, lamp.info)

	svc := tb.fw.service("Desk lamp")
	assert.Equal(t, capability.Lightbulb, svc.typ)
	assert.Equal(t, "device-1|thing-1|p1|Desk lamp|HOME_DIMMED_LIGHT", svc.subtype)
	assert.Equal(t, "Desk lamp", svc.characteristic(capability.Name).Value())
	assert.Equal(t, true, svc.characteristic(capability.On).Value())
	assert.Equal(t, 70, svc.characteristic(capability.Brightness).Value())

	door := tb.fw.service("Door")
	assert.Equal(t, capability.ContactDetected, door.characteristic(capability.ContactSensorState).Value())

	assert.Equal(t, 2, tb.conn.stream.active())
	assert.Len(t, tb.readings, 2)
}

func TestReconcile_AppliesRangeOverrides(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(
		property("p1", "Lux", model.Luminance, model.Number(300)),
		property("p2", "Outside", model.HomeTemperature, model.Number(4)),
	)

	lux := tb.fw.service("Lux").characteristic(capability.CurrentAmbientLightLevel)
	require.NotNil(t, lux.rng.Max)
	assert.Equal(t, 10000.0, *lux.rng.Max)

	temp := tb.fw.service("Outside").characteristic(capability.CurrentTemperature)
	require.NotNil(t, temp.rng.Min)
	assert.Equal(t, -50.0, *temp.rng.Min)
}

func TestReconcile_Idempotent(t *testing.T) {
	tb := newTestBridge(t)
	props := []model.Property{
		property("p1", "Desk lamp", model.HomeLight, model.Bool(true)),
		property("p2", "Motion", model.HomeMotionSensor, model.Bool(false)),
	}

	tb.reconcile(props...)
	tb.reconcile(props...)

	assert.Equal(t, 2, tb.fw.registers)
	assert.Equal(t, 0, tb.fw.updates)
	assert.Empty(t, tb.fw.unregistered)
	assert.Len(t, tb.fw.registered["Desk lamp"].services, 1)
	assert.Equal(t, 2, tb.conn.stream.active())
}

func TestReconcile_RemovesStaleAccessoryOnce(t *testing.T) {
	tb := newTestBridge(t)
	lamp := property("p1", "Desk lamp", model.HomeLight, model.Bool(true))
	plug := property("p2", "Heater", model.HomeSmartPlug, model.Bool(false))

	tb.reconcile(lamp, plug)
	heater := tb.fw.service("Heater").characteristic(capability.On)
	require.Equal(t, 2, heater.handlers())

	tb.reconcile(lamp)
	tb.reconcile(lamp)

	assert.Equal(t, []string{"Heater"}, tb.fw.unregistered)
	assert.Equal(t, 0, heater.handlers())
	assert.Equal(t, 1, tb.conn.stream.active())
	assert.Len(t, tb.engine.Accessories(), 1)
}

func TestReconcile_ExistingServiceIsNotRebuilt(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(property("p1", "Strip", model.HomeColoredLight, model.Value{}))
	tb.reconcile(property("p1", "Strip", model.HomeSwitch, model.Value{}))

	svc := tb.fw.service("Strip")
	assert.Equal(t, capability.Lightbulb, svc.typ)
	assert.Len(t, svc.cs, 5)
}

func TestSet_ControllerWriteIsEncoded(t *testing.T) {
	tb := newTestBridge(t)
	var got model.Value
	tb.req.SetPropertyFunc = func(_ context.Context, thingID, propertyID string, v model.Value) error {
		assert.Equal(t, "thing-1", thingID)
		assert.Equal(t, "p1", propertyID)
		got = v
		return nil
	}
	tb.reconcile(property("p1", "Desk lamp", model.HomeDimmedLight, model.Composite(
		model.Field{Name: "swi", Value: model.Bool(false)},
		model.Field{Name: "bri", Value: model.Number(10)},
	)))

	svc := tb.fw.service("Desk lamp")
	svc.characteristic(capability.Brightness).controllerSet(55)
	tb.wait("Desk lamp")

	want := model.Composite(
		model.Field{Name: "swi", Value: model.Bool(false)},
		model.Field{Name: "bri", Value: model.Number(55)},
		model.Field{Name: "hue", Value: model.Number(0)},
		model.Field{Name: "sat", Value: model.Number(0)},
	)
	assert.True(t, want.Equal(got), got.String())
}

func TestSet_InternalValueIsNotWritten(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(property("p1", "Desk lamp", model.HomeLight, model.Bool(false)))

	tb.fw.service("Desk lamp").characteristic(capability.On).SetValue(true)
	tb.conn.stream.publish("thing-1", "Desk lamp", model.Bool(false))
	tb.wait("Desk lamp")

	assert.NotContains(t, tb.req.recorded(), "set")
}

func TestSet_FailureKeepsLocalValue(t *testing.T) {
	tb := newTestBridge(t)
	tb.req.SetPropertyFunc = func(context.Context, string, string, model.Value) error { return errUnavailable }
	tb.reconcile(property("p1", "Heater", model.HomeSmartPlug, model.Bool(false)))

	on := tb.fw.service("Heater").characteristic(capability.On)
	on.controllerSet(true)
	tb.wait("Heater")

	assert.Contains(t, tb.req.recorded(), "set")
	assert.Equal(t, true, on.Value())
}

func TestGet_ReturnsCachedThenRefreshes(t *testing.T) {
	tb := newTestBridge(t)
	tb.req.GetPropertyFunc = func(_ context.Context, _, id string) (model.Property, error) {
		return model.Property{ID: id, LastValue: model.Number(212)}, nil
	}
	tb.reconcile(property("p1", "Oven", model.HomeTemperatureF, model.Number(32)))

	temp := tb.fw.service("Oven").characteristic(capability.CurrentTemperature)
	assert.Equal(t, 0.0, temp.controllerGet())

	tb.wait("Oven")
	assert.Equal(t, 100.0, temp.Value())
}

func TestGet_FailureKeepsPreviousValue(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(property("p1", "Motion", model.HomeMotionSensor, model.Bool(true)))

	motion := tb.fw.service("Motion").characteristic(capability.MotionDetected)
	motion.controllerGet()
	tb.wait("Motion")

	assert.Equal(t, []string{"get"}, tb.req.recorded())
	assert.Equal(t, true, motion.Value())
}

func TestSetThenGet_WriteIsIssuedFirst(t *testing.T) {
	tb := newTestBridge(t)
	release := make(chan struct{})
	tb.req.SetPropertyFunc = func(context.Context, string, string, model.Value) error {
		<-release
		return nil
	}
	tb.req.GetPropertyFunc = func(context.Context, string, string) (model.Property, error) {
		return model.Property{LastValue: model.Bool(true)}, nil
	}
	tb.reconcile(property("p1", "Desk lamp", model.HomeSwitch, model.Bool(false)))

	on := tb.fw.service("Desk lamp").characteristic(capability.On)
	on.controllerSet(true)
	on.controllerGet()
	close(release)
	tb.wait("Desk lamp")

	assert.Equal(t, []string{"set", "get"}, tb.req.recorded())
}

func TestStream_UpdatesCharacteristics(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(
		property("p1", "Strip", model.HomeColoredLight, model.Value{}),
		property("p2", "Door", model.HomeContactSensor, model.Value{}),
	)

	tb.conn.stream.publish("thing-1", "Strip", model.Composite(
		model.Field{Name: "swi", Value: model.Number(1)},
		model.Field{Name: "bri", Value: model.Number(40)},
		model.Field{Name: "hue", Value: model.Number(180)},
		model.Field{Name: "sat", Value: model.Number(75)},
	))
	tb.conn.stream.publish("thing-1", "Door", model.String("true"))

	strip := tb.fw.service("Strip")
	assert.Equal(t, true, strip.characteristic(capability.On).Value())
	assert.Equal(t, 40, strip.characteristic(capability.Brightness).Value())
	assert.Equal(t, 180.0, strip.characteristic(capability.Hue).Value())
	assert.Equal(t, 75.0, strip.characteristic(capability.Saturation).Value())
	assert.Equal(t, capability.ContactNotDetected, tb.fw.service("Door").characteristic(capability.ContactSensorState).Value())
	assert.Len(t, tb.readings, 2)
}

func TestReconcile_ResubscribesOnNewStream(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(property("p1", "Desk lamp", model.HomeLight, model.Bool(true)))
	old := tb.conn.stream

	tb.conn.stream = &fakeStream{}
	tb.reconcile(property("p1", "Desk lamp", model.HomeLight, model.Bool(true)))

	assert.Equal(t, 0, old.active())
	assert.Equal(t, 1, tb.conn.stream.active())
}

func TestDiscover(t *testing.T) {
	tb := newTestBridge(t)
	kitchen := model.Thing{ID: "thing-2", Name: "Kitchen", DeviceID: "device-2"}
	failKitchen := false
	tb.req.ListThingsFunc = func(context.Context) ([]model.Thing, error) {
		return []model.Thing{thing, kitchen}, nil
	}
	tb.req.ListPropertiesFunc = func(_ context.Context, thingID string) ([]model.Property, error) {
		if thingID == kitchen.ID {
			if failKitchen {
				return nil, errUnavailable
			}
			return []model.Property{{ID: "p9", Name: "Kettle", Type: model.HomeSmartPlug}}, nil
		}
		return []model.Property{property("p1", "Desk lamp", model.HomeLight, model.Bool(true))}, nil
	}

	require.NoError(t, tb.engine.Discover(context.Background()))
	require.Len(t, tb.fw.registered, 2)
	assert.Equal(t, "device-2|thing-2|p9|Kettle|HOME_SMART_PLUG", tb.fw.service("Kettle").subtype)

	failKitchen = true
	require.NoError(t, tb.engine.Discover(context.Background()))
	assert.Empty(t, tb.fw.unregistered)
	assert.Len(t, tb.fw.registered, 2)
}

func TestDiscover_ConnectionFailure(t *testing.T) {
	tb := newTestBridge(t)
	tb.conn.err = errUnavailable

	err := tb.engine.Discover(context.Background())
	assert.ErrorIs(t, err, errUnavailable)
	assert.Empty(t, tb.fw.registered)
}

func TestAccessories(t *testing.T) {
	tb := newTestBridge(t)
	tb.reconcile(
		property("p2", "Porch", model.HomeLight, model.Bool(false)),
		property("p1", "Attic", model.HomeSwitch, model.Bool(true)),
	)

	accs := tb.engine.Accessories()
	require.Len(t, accs, 2)
	assert.Equal(t, "Attic", accs[0].Name)
	assert.Equal(t, "attic", accs[0].SerialNumber)
	require.Len(t, accs[0].Services, 1)
	assert.Equal(t, "Switch", accs[0].Services[0].Type)
	assert.Equal(t, "device-1|thing-1|p1|Attic|HOME_SWITCH", accs[0].Services[0].Key)
	assert.Equal(t, true, accs[0].Services[0].Values["On"])
}
