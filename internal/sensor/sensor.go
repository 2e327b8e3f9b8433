// Package sensor implements the Sensor Tree: a named, typed, versioned
// value store with change events and per-listener sampling strategies
// (spec §3, §4.1).
package sensor

import "time"

// Kind is a sensor's value type. The type never changes after creation.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindString
	KindDiscrete
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "integer"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindDiscrete:
		return "discrete"
	default:
		return "unknown"
	}
}

// Status is a sensor's current health/freshness status.
type Status int

const (
	StatusUnknown Status = iota
	StatusNominal
	StatusWarn
	StatusError
	StatusInactive
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusNominal:
		return "nominal"
	case StatusWarn:
		return "warn"
	case StatusError:
		return "error"
	case StatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Value is the tagged union of a sensor reading. Exactly one field is
// meaningful, selected by Kind.
type Value struct {
	Float    float64
	Int      int64
	Bool     bool
	String   string
	Discrete string // value must be a member of the owning Sensor's Params
}

// Spec describes a sensor at creation time (spec §3: name, description,
// unit, discrete-parameter set, type, default).
type Spec struct {
	Name        string
	Description string
	Unit        string
	Kind        Kind
	Params      []string // allowed values for KindDiscrete
	Default     Value
}

// Reading is the immutable snapshot handed to GetValue/GetReading
// callers and listeners: (timestamp, status, value).
type Reading struct {
	Timestamp time.Time
	Status    Status
	Value     Value
}

// Sensor is one named entry in the tree. Sensors are created once at
// service start and live for the life of the tree (spec §3 Lifecycle).
type Sensor struct {
	Spec Spec

	current Reading
}
