package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindComposite
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindComposite:
		return "composite"
	}
	return "null"
}

// Field is a named scalar member of a composite value.
type Field struct {
	Name  string
	Value Value
}

// Value is a remote property value. The kind is decided once at ingestion.
// Composite fields keep their order, which is the order they are sent in.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Str    string
	Fields []Field
}

func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func String(s string) Value  { return Value{Kind: KindString, Str: s} }
func Composite(fields ...Field) Value {
	return Value{Kind: KindComposite, Fields: fields}
}

// Field returns the named composite member.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// With returns a copy of a composite value with the field set, appending it when absent.
func (v Value) With(name string, fv Value) Value {
	out := Value{Kind: KindComposite, Fields: make([]Field, 0, len(v.Fields)+1)}
	found := false
	for _, f := range v.Fields {
		if f.Name == name {
			f.Value = fv
			found = true
		}
		out.Fields = append(out.Fields, f)
	}
	if !found {
		out.Fields = append(out.Fields, Field{Name: name, Value: fv})
	}
	return out
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Equal compares kind and content; composite fields compare in order.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Number == o.Number
	case KindString:
		return v.Str == o.Str
	case KindComposite:
		if len(v.Fields) != len(o.Fields) {
			return false
		}
		for i := range v.Fields {
			if v.Fields[i].Name != o.Fields[i].Name || !v.Fields[i].Value.Equal(o.Fields[i].Value) {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindString:
		return v.Str
	case KindComposite:
		data, _ := v.MarshalJSON()
		return string(data)
	}
	return "null"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindBool:
		return json.Marshal(v.Bool)
	case KindNumber:
		return json.Marshal(v.Number)
	case KindString:
		return json.Marshal(v.Str)
	case KindComposite:
		buf := bytes.Buffer{}
		buf.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(f.Name)
			if err != nil {
				return nil, err
			}
			data, err := f.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(data)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case nil:
		*v = Value{}
	case bool:
		*v = Bool(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return err
		}
		*v = Number(n)
	case string:
		*v = String(t)
	case json.Delim:
		// Arrays have no characteristic counterpart; they decode as null so a
		// single odd property cannot fail a whole listing.
		if t != '{' {
			*v = Value{}
			return nil
		}
		out := Composite()
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return err
			}
			raw := json.RawMessage{}
			if err := dec.Decode(&raw); err != nil {
				return err
			}
			var fv Value
			if err := fv.UnmarshalJSON(raw); err != nil {
				return err
			}
			if fv.Kind == KindComposite {
				continue
			}
			out.Fields = append(out.Fields, Field{Name: keyTok.(string), Value: fv})
		}
		*v = out
	}
	return nil
}

// FromAny converts a decoded scalar (bool, numeric or string) into a Value.
func FromAny(raw any) (Value, bool) {
	switch t := raw.(type) {
	case nil:
		return Value{}, true
	case Value:
		return t, true
	case bool:
		return Bool(t), true
	case string:
		return String(t), true
	case float64:
		return Number(t), true
	case float32:
		return Number(float64(t)), true
	case int:
		return Number(float64(t)), true
	case int8:
		return Number(float64(t)), true
	case int16:
		return Number(float64(t)), true
	case int32:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case uint:
		return Number(float64(t)), true
	case uint8:
		return Number(float64(t)), true
	case uint16:
		return Number(float64(t)), true
	case uint32:
		return Number(float64(t)), true
	case uint64:
		return Number(float64(t)), true
	}
	return Value{}, false
}
