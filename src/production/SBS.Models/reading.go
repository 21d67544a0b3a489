package sbsmodels

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DateTimeLayout is the wire format of Reading.DateTime, local time, second precision
const DateTimeLayout = "2006-01-02 15:04:05"

var ErrUnknownParameter = errors.New("unknown device parameter")

// ParameterKind is the measured quantity of a reading
type ParameterKind string

const (
	Flow        ParameterKind = "Flow"
	Temperature ParameterKind = "Temperature"
	Humidity    ParameterKind = "Humidity"
	Sound       ParameterKind = "Sound"
)

// ParameterKinds lists every kind in band order
var ParameterKinds = []ParameterKind{Flow, Temperature, Humidity, Sound}

func (k ParameterKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known kinds
func (k ParameterKind) Valid() bool {
	for _, known := range ParameterKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseParameterKind parses a kind name case-insensitively
func ParseParameterKind(s string) (ParameterKind, error) {
	for _, known := range ParameterKinds {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownParameter, s)
}

// Reading is one simulated sensor data point
type Reading struct {
	DeviceValue     int           `json:"deviceValue" bson:"deviceValue"`
	DeviceParameter ParameterKind `json:"deviceParameter" bson:"deviceParameter"`
	DeviceID        string        `json:"deviceId" bson:"deviceId"`
	DateTime        string        `json:"dateTime" bson:"dateTime"`
	MessageID       string        `json:"messageId" bson:"messageId"`
	SessionID       string        `json:"sessionId" bson:"sessionId"`
}

// Payload returns the JSON wire encoding of the reading
func (r Reading) Payload() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reading %s: %w", r.MessageID, err)
	}
	return b, nil
}
