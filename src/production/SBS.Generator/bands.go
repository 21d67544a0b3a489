package generator

import (
	sbsmodels "gitlab.com/maplesense1/sbs.iot_generator/src/production/SBS.Models"
)

// Band binds a probability interval [Lower, Upper) to a parameter kind, its
// inclusive value range and its topic.
type Band struct {
	Lower float64
	Upper float64
	Kind  sbsmodels.ParameterKind
	Min   int
	Max   int
	Topic string
}

// Contains reports whether r falls in the band, lower edge inclusive, upper exclusive
func (b Band) Contains(r float64) bool {
	return b.Lower <= r && r < b.Upper
}

// Bands is ordered and contiguous over [0, 1)
var Bands = []Band{
	{Lower: 0.00, Upper: 0.20, Kind: sbsmodels.Flow, Min: 60, Max: 100, Topic: "/sbs/devicedata/flow"},
	{Lower: 0.20, Upper: 0.55, Kind: sbsmodels.Temperature, Min: 15, Max: 35, Topic: "/sbs/devicedata/temperature"},
	{Lower: 0.55, Upper: 0.70, Kind: sbsmodels.Humidity, Min: 50, Max: 90, Topic: "/sbs/devicedata/humidity"},
	{Lower: 0.70, Upper: 1.00, Kind: sbsmodels.Sound, Min: 100, Max: 140, Topic: "/sbs/devicedata/sound"},
}

// BandFor returns the band containing r. ok is false only for r outside [0, 1).
func BandFor(r float64) (band Band, ok bool) {
	for _, b := range Bands {
		if b.Contains(r) {
			return b, true
		}
	}
	return Band{}, false
}

// BandForKind returns the band of a parameter kind
func BandForKind(kind sbsmodels.ParameterKind) (Band, bool) {
	for _, b := range Bands {
		if b.Kind == kind {
			return b, true
		}
	}
	return Band{}, false
}

// TopicFor returns the topic bound to kind, or "" for unknown kinds
func TopicFor(kind sbsmodels.ParameterKind) string {
	b, _ := BandForKind(kind)
	return b.Topic
}
