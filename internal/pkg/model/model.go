package model

import "time"

// Thing is a remote device grouping properties.
type Thing struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DeviceID string `json:"device_id"`
}

// Property is a read-only snapshot of a remote property.
type Property struct {
	ID        string       `json:"id"`
	ThingID   string       `json:"thing_id"`
	Name      string       `json:"name"`
	Variable  string       `json:"variable_name"`
	Type      PropertyType `json:"type"`
	LastValue Value        `json:"last_value"`
	UpdatedAt *time.Time   `json:"value_updated_at,omitempty"`
}

// VariableName is the name the thing publishes the property under.
func (p Property) VariableName() string {
	if p.Variable != "" {
		return p.Variable
	}
	return p.Name
}

// Reading is a property value observed from the cloud.
type Reading struct {
	ThingID    string       `json:"thing_id"`
	PropertyID string       `json:"property_id"`
	Name       string       `json:"name"`
	Type       PropertyType `json:"type"`
	Value      Value        `json:"value"`
	TimeStamp  time.Time    `json:"timestamp"`
}
