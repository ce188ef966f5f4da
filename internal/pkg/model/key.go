package model

import (
	"errors"
	"fmt"
	"strings"
)

// KeyDelimiter separates the fields of a Key. Ids and names must not contain it.
const KeyDelimiter = "|"

var ErrInvalidKey = errors.New("invalid addressable key")

// Key routes a local service back to its remote property.
type Key struct {
	DeviceID     string
	ThingID      string
	PropertyID   string
	PropertyName string
	PropertyType PropertyType
}

func NewKey(thing Thing, property Property) Key {
	return Key{
		DeviceID:     thing.DeviceID,
		ThingID:      property.ThingID,
		PropertyID:   property.ID,
		PropertyName: property.VariableName(),
		PropertyType: property.Type,
	}
}

// Validate rejects keys that would not survive a round trip.
func (k Key) Validate() error {
	for _, f := range []string{k.DeviceID, k.ThingID, k.PropertyID, k.PropertyName, string(k.PropertyType)} {
		if strings.Contains(f, KeyDelimiter) {
			return fmt.Errorf("%w: field %q contains %q", ErrInvalidKey, f, KeyDelimiter)
		}
	}
	return nil
}

func (k Key) String() string {
	return strings.Join([]string{
		k.DeviceID,
		k.ThingID,
		k.PropertyID,
		k.PropertyName,
		string(k.PropertyType),
	}, KeyDelimiter)
}

func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, KeyDelimiter)
	if len(parts) != 5 {
		return Key{}, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidKey, len(parts))
	}
	return Key{
		DeviceID:     parts[0],
		ThingID:      parts[1],
		PropertyID:   parts[2],
		PropertyName: parts[3],
		PropertyType: PropertyType(parts[4]),
	}, nil
}
