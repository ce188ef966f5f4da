// Package accessory is the contract between the synchronization engine and
// the home-automation framework that exposes accessories to controllers.
package accessory

import "github.com/anicoll/arduino-bridge/internal/pkg/capability"

// Origin tells set handlers where a value came from.
type Origin int

const (
	// Internal values were applied by the bridge itself.
	Internal Origin = iota
	// Controller values were written by a paired controller.
	Controller
)

func (o Origin) String() string {
	if o == Controller {
		return "controller"
	}
	return "internal"
}

const (
	Manufacturer = "Arduino"
	Model        = "IoTCloudBridgedAccessory"
)

type Info struct {
	Name         string
	Manufacturer string
	Model        string
	SerialNumber string
}

type Characteristic interface {
	Kind() capability.Kind
	Value() any
	// SetValue applies v with Internal origin.
	SetValue(v any)
	SetRange(r capability.Range)
	// OnSet registers fn for every value change. The returned func unregisters it.
	OnSet(fn func(v any, origin Origin)) func()
	// OnGet registers fn for controller reads. The framework answers the read
	// with the current value before fn runs.
	OnGet(fn func()) func()
}

type Service interface {
	Name() string
	Type() capability.ServiceType
	// Subtype carries the model.Key of the remote property.
	Subtype() string
	// Characteristics are in capability.Profile order.
	Characteristics() []Characteristic
}

type Accessory interface {
	Name() string
	Info() Info
	Services() []Service
	// Service finds a service by display name.
	Service(name string) (Service, bool)
	AddService(name string, typ capability.ServiceType, subtype string, kinds []capability.Kind) (Service, error)
}

// Framework hosts accessories for controllers.
type Framework interface {
	NewAccessory(info Info) Accessory
	Register(a Accessory) error
	Update(a Accessory) error
	Unregister(a Accessory) error
}

// Values snapshots the values of a service's characteristics in order.
func Values(s Service) []any {
	cs := s.Characteristics()
	values := make([]any, len(cs))
	for i, c := range cs {
		values[i] = c.Value()
	}
	return values
}

// Find returns the characteristic of the given kind.
func Find(s Service, kind capability.Kind) (Characteristic, bool) {
	for _, c := range s.Characteristics() {
		if c.Kind() == kind {
			return c, true
		}
	}
	return nil, false
}
