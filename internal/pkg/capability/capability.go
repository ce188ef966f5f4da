package capability

import (
	"slices"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// Kind identifies a characteristic independently of the accessory framework.
type Kind string

const (
	Name                     Kind = "Name"
	On                       Kind = "On"
	Brightness               Kind = "Brightness"
	Hue                      Kind = "Hue"
	Saturation               Kind = "Saturation"
	ContactSensorState       Kind = "ContactSensorState"
	CurrentTemperature       Kind = "CurrentTemperature"
	MotionDetected           Kind = "MotionDetected"
	CurrentAmbientLightLevel Kind = "CurrentAmbientLightLevel"
)

type ServiceType string

const (
	Switch            ServiceType = "Switch"
	Outlet            ServiceType = "Outlet"
	Lightbulb         ServiceType = "Lightbulb"
	ContactSensor     ServiceType = "ContactSensor"
	MotionSensor      ServiceType = "MotionSensor"
	TemperatureSensor ServiceType = "TemperatureSensor"
	LightSensor       ServiceType = "LightSensor"
)

// ContactSensorState values.
const (
	ContactDetected    = 0
	ContactNotDetected = 1
)

// Profile is the service a property type is exposed as. Characteristics are
// ordered: Encode addresses them by position and Name is always first.
type Profile struct {
	Service         ServiceType
	Characteristics []Kind
}

var table = map[model.PropertyType]Profile{
	model.HomeSwitch:        {Switch, []Kind{Name, On}},
	model.HomeSmartPlug:     {Outlet, []Kind{Name, On}},
	model.HomeLight:         {Lightbulb, []Kind{Name, On}},
	model.HomeDimmedLight:   {Lightbulb, []Kind{Name, On, Brightness}},
	model.HomeColoredLight:  {Lightbulb, []Kind{Name, On, Brightness, Hue, Saturation}},
	model.HomeContactSensor: {ContactSensor, []Kind{Name, ContactSensorState}},
	model.HomeMotionSensor:  {MotionSensor, []Kind{Name, MotionDetected}},
	model.HomeTemperature:   {TemperatureSensor, []Kind{Name, CurrentTemperature}},
	model.HomeTemperatureC:  {TemperatureSensor, []Kind{Name, CurrentTemperature}},
	model.HomeTemperatureF:  {TemperatureSensor, []Kind{Name, CurrentTemperature}},
	model.Luminance:         {LightSensor, []Kind{Name, CurrentAmbientLightLevel}},
}

// Lookup returns the service for a property type. Unknown types are not an
// error, the property is simply not exposed.
func Lookup(pt model.PropertyType) (Profile, bool) {
	s, ok := table[pt]
	if !ok {
		return Profile{}, false
	}
	s.Characteristics = slices.Clone(s.Characteristics)
	return s, true
}

// Range overrides the numeric bounds a framework assigns a characteristic.
type Range struct {
	Min  *float64
	Max  *float64
	Step *float64
}

func bound(f float64) *float64 { return &f }

var ranges = map[Kind]Range{
	CurrentAmbientLightLevel: {Min: bound(0), Max: bound(10000), Step: bound(1)},
	CurrentTemperature:       {Min: bound(-50)},
}

func Props(k Kind) (Range, bool) {
	r, ok := ranges[k]
	return r, ok
}
