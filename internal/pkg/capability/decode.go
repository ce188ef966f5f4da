package capability

import (
	"math"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// BoolProjection reduces any remote value to on/off.
func BoolProjection(v model.Value) bool {
	switch v.Kind {
	case model.KindBool:
		return v.Bool
	case model.KindString:
		return v.Str != "false" && v.Str != "0"
	case model.KindNumber:
		return v.Number != 0
	case model.KindComposite:
		swi, ok := v.Field(model.FieldSwitch)
		if !ok {
			return true
		}
		switch swi.Kind {
		case model.KindNumber:
			return swi.Number != 0
		case model.KindBool:
			return swi.Bool
		}
		return true
	}
	return false
}

func FtoC(f float64) float64 {
	return (f - 32) * 5 / 9
}

// Decode converts a remote value into the value of a characteristic of the
// given kind. It reports false when the value carries nothing for that kind
// and the characteristic should keep its current value.
func Decode(pt model.PropertyType, kind Kind, v model.Value) (any, bool) {
	if v.IsNull() {
		return nil, false
	}
	switch kind {
	case On, MotionDetected:
		return BoolProjection(v), true
	case Brightness:
		n, ok := number(v.Field(model.FieldBrightness))
		if !ok {
			return nil, false
		}
		return int(math.Round(n)), true
	case Hue, Saturation:
		field := model.FieldHue
		if kind == Saturation {
			field = model.FieldSaturation
		}
		n, ok := number(v.Field(field))
		if !ok {
			return nil, false
		}
		return n, true
	case ContactSensorState:
		if BoolProjection(v) {
			return ContactNotDetected, true
		}
		return ContactDetected, true
	case CurrentTemperature:
		if v.Kind != model.KindNumber {
			return nil, false
		}
		if pt == model.HomeTemperatureF {
			return FtoC(v.Number), true
		}
		return v.Number, true
	case CurrentAmbientLightLevel:
		if v.Kind != model.KindNumber {
			return nil, false
		}
		return v.Number, true
	}
	return nil, false
}

func number(v model.Value, ok bool) (float64, bool) {
	if !ok || v.Kind != model.KindNumber {
		return 0, false
	}
	return v.Number, true
}
