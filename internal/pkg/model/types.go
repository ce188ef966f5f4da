package model

type PropertyType string

func (pt PropertyType) String() string {
	return string(pt)
}

const (
	HomeSwitch        PropertyType = "HOME_SWITCH"
	HomeSmartPlug     PropertyType = "HOME_SMART_PLUG"
	HomeLight         PropertyType = "HOME_LIGHT"
	HomeDimmedLight   PropertyType = "HOME_DIMMED_LIGHT"
	HomeColoredLight  PropertyType = "HOME_COLORED_LIGHT"
	HomeContactSensor PropertyType = "HOME_CONTACT_SENSOR"
	HomeMotionSensor  PropertyType = "HOME_MOTION_SENSOR"
	HomeTemperature   PropertyType = "HOME_TEMPERATURE"
	HomeTemperatureC  PropertyType = "HOME_TEMPERATURE_C"
	HomeTemperatureF  PropertyType = "HOME_TEMPERATURE_F"
	Luminance         PropertyType = "LUMINANCE"
)

// Composite field names used by light properties.
const (
	FieldSwitch     = "swi"
	FieldBrightness = "bri"
	FieldHue        = "hue"
	FieldSaturation = "sat"
)
