// Package senml decodes the SenML CBOR batches things publish their property values in.
package senml

import (
	"errors"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
)

// Record uses the integer labels of RFC 8428 section 6. Things publish the
// device urn as base name and the bare property name in Name, so names are
// matched without the base name applied.
type Record struct {
	BaseName    string   `cbor:"-2,keyasint,omitempty"`
	BaseTime    float64  `cbor:"-3,keyasint,omitempty"`
	Name        string   `cbor:"0,keyasint,omitempty"`
	Unit        string   `cbor:"1,keyasint,omitempty"`
	Value       *float64 `cbor:"2,keyasint,omitempty"`
	StringValue *string  `cbor:"3,keyasint,omitempty"`
	BoolValue   *bool    `cbor:"4,keyasint,omitempty"`
	Time        float64  `cbor:"6,keyasint,omitempty"`
}

// FieldSeparator splits a composite member name, as in "light:bri".
const FieldSeparator = ":"

var ErrEmpty = errors.New("senml payload carries no records")

var decMode cbor.DecMode

func init() {
	var err error
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic("senml: CBOR decoder initialization failed: " + err.Error())
	}
}

func Decode(data []byte) ([]Record, error) {
	records := []Record{}
	if err := decMode.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	return records, nil
}

func Encode(records []Record) ([]byte, error) {
	return cbor.Marshal(records)
}

func (r Record) value() (model.Value, bool) {
	switch {
	case r.BoolValue != nil:
		return model.Bool(*r.BoolValue), true
	case r.Value != nil:
		return model.Number(*r.Value), true
	case r.StringValue != nil:
		return model.String(*r.StringValue), true
	}
	return model.Value{}, false
}

// Values groups records by property name. Records named "prop:field" are
// merged into a composite value for "prop" in arrival order.
func Values(records []Record) map[string]model.Value {
	out := map[string]model.Value{}
	for _, r := range records {
		v, ok := r.value()
		if !ok {
			continue
		}
		name, field, isField := strings.Cut(r.Name, FieldSeparator)
		if !isField {
			out[name] = v
			continue
		}
		current := out[name]
		if current.Kind != model.KindComposite {
			current = model.Composite()
		}
		out[name] = current.With(field, v)
	}
	return out
}
