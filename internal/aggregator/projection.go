// Package aggregator implements the Telescope State Aggregator (spec
// §4.2): it ingests a periodic multicast broadcast of raw telemetry,
// projects it onto a stable schema of named typed sensors, and
// republishes the result as an observable sensor.Tree.
package aggregator

import (
	"fmt"
	"strconv"

	"github.com/mpifr-bdr/reynard/internal/sensor"
)

// RawRecord is an opaque keyed telemetry record: flat key to
// number/bool/string, as delivered by the external multicast source.
type RawRecord map[string]any

// Projection maps one derived sensor to its declared type, unit,
// default and a projection function over the raw telemetry record.
type Projection struct {
	Name        string
	Kind        sensor.Kind
	Unit        string
	Description string
	Default     sensor.Value
	Params      []string
	Project     func(RawRecord) (sensor.Value, bool)
}

// projections is the static Projection Table, populated at package
// init() via Register calls — the corpus's dynamic-registry pattern
// (factory functions registered by name at startup rather than
// discovered via decorators) generalized from pipeline/receiver
// factories to telemetry projections.
var projections = make(map[string]Projection)

// Register adds an entry to the Projection Table. Panics on duplicate
// name since registration only happens at package init().
func Register(p Projection) {
	if _, exists := projections[p.Name]; exists {
		panic(fmt.Sprintf("aggregator: projection %q already registered", p.Name))
	}
	projections[p.Name] = p
}

// Projections returns every registered projection, for sensor-tree
// bootstrap and the "xml" rich-snapshot command.
func Projections() map[string]Projection {
	return projections
}

func floatField(raw RawRecord, key string) (sensor.Value, bool) {
	v, ok := raw[key]
	if !ok {
		return sensor.Value{}, false
	}
	switch n := v.(type) {
	case float64:
		return sensor.Value{Float: n}, true
	case int:
		return sensor.Value{Float: float64(n)}, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return sensor.Value{}, false
		}
		return sensor.Value{Float: f}, true
	default:
		return sensor.Value{}, false
	}
}

func intField(raw RawRecord, key string) (sensor.Value, bool) {
	v, ok := raw[key]
	if !ok {
		return sensor.Value{}, false
	}
	switch n := v.(type) {
	case float64:
		return sensor.Value{Int: int64(n)}, true
	case int:
		return sensor.Value{Int: int64(n)}, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return sensor.Value{}, false
		}
		return sensor.Value{Int: i}, true
	default:
		return sensor.Value{}, false
	}
}

func boolField(raw RawRecord, key string) (sensor.Value, bool) {
	v, ok := raw[key]
	if !ok {
		return sensor.Value{}, false
	}
	switch b := v.(type) {
	case bool:
		return sensor.Value{Bool: b}, true
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return sensor.Value{}, false
		}
		return sensor.Value{Bool: parsed}, true
	default:
		return sensor.Value{}, false
	}
}

func stringField(raw RawRecord, key string) (sensor.Value, bool) {
	v, ok := raw[key]
	if !ok {
		return sensor.Value{}, false
	}
	s, ok := v.(string)
	if !ok {
		return sensor.Value{}, false
	}
	return sensor.Value{String: s}, true
}

// simpleFloat registers a float-typed projection that copies key
// straight out of the raw record — the common case among the 46 stable
// sensors (spec.md §6).
func simpleFloat(name, unit, desc, key string) {
	Register(Projection{
		Name: name, Kind: sensor.KindFloat, Unit: unit, Description: desc,
		Project: func(raw RawRecord) (sensor.Value, bool) { return floatField(raw, key) },
	})
}

func simpleString(name, desc, key string) {
	Register(Projection{
		Name: name, Kind: sensor.KindString, Description: desc,
		Project: func(raw RawRecord) (sensor.Value, bool) { return stringField(raw, key) },
	})
}
