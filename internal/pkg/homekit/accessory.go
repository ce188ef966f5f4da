package homekit

import (
	"encoding/binary"
	"fmt"
	"sync"

	haccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"
	"github.com/google/uuid"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/capability"
)

var serviceTypes = map[capability.ServiceType]string{
	capability.Switch:            service.TypeSwitch,
	capability.Outlet:            service.TypeOutlet,
	capability.Lightbulb:         service.TypeLightbulb,
	capability.ContactSensor:     service.TypeContactSensor,
	capability.MotionSensor:      service.TypeMotionSensor,
	capability.TemperatureSensor: service.TypeTemperatureSensor,
	capability.LightSensor:       service.TypeLightSensor,
}

var accessoryTypes = map[capability.ServiceType]byte{
	capability.Switch:    haccessory.TypeSwitch,
	capability.Outlet:    haccessory.TypeOutlet,
	capability.Lightbulb: haccessory.TypeLightbulb,
}

// accessoryID derives a stable HAP accessory id from the accessory name.
// Id 1 is reserved for the bridge.
func accessoryID(name string) uint64 {
	seed := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
	id := binary.BigEndian.Uint64(seed[:8]) >> 1
	if id <= 1 {
		id += 2
	}
	return id
}

type hkAccessory struct {
	info accessory.Info
	a    *haccessory.A

	mu       sync.Mutex
	services []*hkService
}

func newAccessory(info accessory.Info) *hkAccessory {
	return &hkAccessory{info: info}
}

func (ha *hkAccessory) Name() string         { return ha.info.Name }
func (ha *hkAccessory) Info() accessory.Info { return ha.info }

func (ha *hkAccessory) Services() []accessory.Service {
	ha.mu.Lock()
	defer ha.mu.Unlock()
	out := make([]accessory.Service, len(ha.services))
	for i, s := range ha.services {
		out[i] = s
	}
	return out
}

func (ha *hkAccessory) Service(name string) (accessory.Service, bool) {
	ha.mu.Lock()
	defer ha.mu.Unlock()
	for _, s := range ha.services {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

func (ha *hkAccessory) AddService(name string, typ capability.ServiceType, subtype string, kinds []capability.Kind) (accessory.Service, error) {
	hapType, ok := serviceTypes[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported service type %q", typ)
	}

	s := &hkService{name: name, typ: typ, subtype: subtype, s: service.New(hapType)}
	for _, kind := range kinds {
		c, err := newCharacteristic(kind, name)
		if err != nil {
			return nil, err
		}
		s.s.AddC(c.c)
		s.cs = append(s.cs, c)
	}

	ha.mu.Lock()
	defer ha.mu.Unlock()
	if ha.a == nil {
		ha.a = haccessory.New(haccessory.Info{
			Name:         ha.info.Name,
			Manufacturer: ha.info.Manufacturer,
			Model:        ha.info.Model,
			SerialNumber: ha.info.SerialNumber,
		}, accessoryType(typ))
		ha.a.Id = accessoryID(ha.info.Name)
	}
	ha.a.AddS(s.s)
	ha.services = append(ha.services, s)
	return s, nil
}

func accessoryType(typ capability.ServiceType) byte {
	if t, ok := accessoryTypes[typ]; ok {
		return t
	}
	return haccessory.TypeSensor
}

type hkService struct {
	name    string
	typ     capability.ServiceType
	subtype string
	s       *service.S
	cs      []*hkCharacteristic
}

func (s *hkService) Name() string                 { return s.name }
func (s *hkService) Type() capability.ServiceType { return s.typ }
func (s *hkService) Subtype() string              { return s.subtype }

func (s *hkService) Characteristics() []accessory.Characteristic {
	out := make([]accessory.Characteristic, len(s.cs))
	for i, c := range s.cs {
		out[i] = c
	}
	return out
}
