package capability

import "github.com/anicoll/arduino-bridge/internal/pkg/model"

// Encode builds the remote payload from the values of a service's
// characteristics, indexed in Profile order. Read-only types report false.
func Encode(pt model.PropertyType, values []any) (model.Value, bool) {
	at := func(i int) (model.Value, bool) {
		if i >= len(values) {
			return model.Value{}, false
		}
		return toValue(values[i])
	}

	switch pt {
	case model.HomeSwitch, model.HomeSmartPlug, model.HomeLight:
		return at(1)
	case model.HomeDimmedLight:
		swi, ok1 := at(1)
		bri, ok2 := at(2)
		if !ok1 || !ok2 {
			return model.Value{}, false
		}
		return model.Composite(
			model.Field{Name: model.FieldSwitch, Value: swi},
			model.Field{Name: model.FieldBrightness, Value: bri},
			model.Field{Name: model.FieldHue, Value: model.Number(0)},
			model.Field{Name: model.FieldSaturation, Value: model.Number(0)},
		), true
	case model.HomeColoredLight:
		var fields []model.Field
		for i, name := range []string{model.FieldSwitch, model.FieldBrightness, model.FieldHue, model.FieldSaturation} {
			v, ok := at(i + 1)
			if !ok {
				return model.Value{}, false
			}
			fields = append(fields, model.Field{Name: name, Value: v})
		}
		return model.Composite(fields...), true
	}
	return model.Value{}, false
}

func toValue(v any) (model.Value, bool) {
	switch t := v.(type) {
	case bool:
		return model.Bool(t), true
	case int:
		return model.Number(float64(t)), true
	case int32:
		return model.Number(float64(t)), true
	case int64:
		return model.Number(float64(t)), true
	case uint8:
		return model.Number(float64(t)), true
	case float32:
		return model.Number(float64(t)), true
	case float64:
		return model.Number(t), true
	}
	return model.Value{}, false
}
