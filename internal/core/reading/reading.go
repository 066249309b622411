// Package reading defines the reading documents held in tenant stores.
package reading

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
)

// Type is a device type. Each type lives in its own collection.
type Type string

const (
	Energy      Type = "energy"
	Solar       Type = "solar"
	Water       Type = "water"
	Gas         Type = "gas"
	Temperature Type = "temperature"
	Humidity    Type = "humidity"
	Pressure    Type = "pressure"
)

// Types lists every supported device type.
var Types = []Type{Energy, Solar, Water, Gas, Temperature, Humidity, Pressure}

// ParseType rejects anything outside the closed set of device types.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Types {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown device type %q", s)
}

// Collection is the store collection holding readings of this type.
func (t Type) Collection() string { return string(t) }

// DefaultUnit is the unit reported when a document carries none.
func (t Type) DefaultUnit() string {
	switch t {
	case Energy, Solar:
		return "kWh"
	case Water, Gas:
		return "m³"
	case Temperature:
		return "°C"
	case Humidity:
		return "%"
	case Pressure:
		return "bar"
	default:
		return "unit"
	}
}

// Document field names.
const (
	FieldDeviceID    = "deviceId"
	FieldTimestamp   = "timestamp"
	FieldValue       = "value"
	FieldConsumption = "consumption"
	FieldProduction  = "production"
	FieldUnit        = "unit"
	FieldFlowRate    = "flowRate"
	FieldPressure    = "pressure"
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldPower       = "power"
)

// MetricFields are the instantaneous fields a mean series can be built from.
var MetricFields = []string{FieldFlowRate, FieldPressure, FieldTemperature, FieldHumidity, FieldPower}

// IsMetricField reports whether field is an instantaneous metric.
func IsMetricField(field string) bool {
	for _, f := range MetricFields {
		if f == field {
			return true
		}
	}
	return false
}

// Reading is one numeric observation of one device.
type Reading struct {
	DeviceID  string
	Timestamp timestamp.Raw
	Value     decimal.Decimal
}

// Document is a reading document as stored, field by field.
type Document map[string]interface{}

// DeviceID returns the document's device id, if it has a string one.
func (d Document) DeviceID() (string, bool) {
	id, ok := d[FieldDeviceID].(string)
	return id, ok && id != ""
}

// Timestamp returns the tagged raw timestamp of the document.
func (d Document) Timestamp() timestamp.Raw {
	return timestamp.FromValue(d[FieldTimestamp])
}

// Number extracts a numeric field.
func (d Document) Number(field string) (decimal.Decimal, bool) {
	v, ok := d[field]
	if !ok {
		return decimal.Zero, false
	}
	return ExtractDecimal(v)
}
