package homekit

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/brutella/hap/characteristic"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/capability"
)

func newC(kind capability.Kind, name string) (*characteristic.C, error) {
	switch kind {
	case capability.Name:
		c := characteristic.NewName()
		c.SetValue(name)
		return c.C, nil
	case capability.On:
		return characteristic.NewOn().C, nil
	case capability.Brightness:
		return characteristic.NewBrightness().C, nil
	case capability.Hue:
		return characteristic.NewHue().C, nil
	case capability.Saturation:
		return characteristic.NewSaturation().C, nil
	case capability.ContactSensorState:
		return characteristic.NewContactSensorState().C, nil
	case capability.CurrentTemperature:
		return characteristic.NewCurrentTemperature().C, nil
	case capability.MotionDetected:
		return characteristic.NewMotionDetected().C, nil
	case capability.CurrentAmbientLightLevel:
		return characteristic.NewCurrentAmbientLightLevel().C, nil
	}
	return nil, fmt.Errorf("unsupported characteristic %q", kind)
}

type hkCharacteristic struct {
	kind capability.Kind
	c    *characteristic.C

	mu     sync.Mutex
	nextID uint64
	sets   map[uint64]func(any, accessory.Origin)
	gets   map[uint64]func()
}

func newCharacteristic(kind capability.Kind, serviceName string) (*hkCharacteristic, error) {
	c, err := newC(kind, serviceName)
	if err != nil {
		return nil, err
	}
	hc := &hkCharacteristic{
		kind: kind,
		c:    c,
		sets: map[uint64]func(any, accessory.Origin){},
		gets: map[uint64]func(){},
	}
	// requests without an http.Request are the bridge's own updates
	c.OnCValueUpdate(func(_ *characteristic.C, newVal, _ interface{}, req *http.Request) {
		origin := accessory.Internal
		if req != nil {
			origin = accessory.Controller
		}
		for _, fn := range hc.setHandlers() {
			fn(newVal, origin)
		}
	})
	c.ValueRequestFunc = func(req *http.Request) (interface{}, int) {
		v := c.Value()
		if req != nil {
			for _, fn := range hc.getHandlers() {
				fn()
			}
		}
		return v, 0
	}
	return hc, nil
}

func (hc *hkCharacteristic) Kind() capability.Kind { return hc.kind }
func (hc *hkCharacteristic) Value() any            { return hc.c.Value() }

func (hc *hkCharacteristic) SetValue(v any) {
	hc.c.SetValueRequest(v, nil)
}

func (hc *hkCharacteristic) SetRange(r capability.Range) {
	if r.Min != nil {
		hc.c.MinVal = *r.Min
	}
	if r.Max != nil {
		hc.c.MaxVal = *r.Max
	}
	if r.Step != nil {
		hc.c.StepVal = *r.Step
	}
}

func (hc *hkCharacteristic) OnSet(fn func(any, accessory.Origin)) func() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.nextID++
	id := hc.nextID
	hc.sets[id] = fn
	return func() {
		hc.mu.Lock()
		defer hc.mu.Unlock()
		delete(hc.sets, id)
	}
}

func (hc *hkCharacteristic) OnGet(fn func()) func() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.nextID++
	id := hc.nextID
	hc.gets[id] = fn
	return func() {
		hc.mu.Lock()
		defer hc.mu.Unlock()
		delete(hc.gets, id)
	}
}

func (hc *hkCharacteristic) setHandlers() []func(any, accessory.Origin) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	fns := make([]func(any, accessory.Origin), 0, len(hc.sets))
	for _, fn := range hc.sets {
		fns = append(fns, fn)
	}
	return fns
}

func (hc *hkCharacteristic) getHandlers() []func() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	fns := make([]func(), 0, len(hc.gets))
	for _, fn := range hc.gets {
		fns = append(fns, fn)
	}
	return fns
}
