package aggregator

import (
	"fmt"
	"strconv"

	"github.com/mpifr-bdr/reynard/internal/sensor"
)

// convertString type-converts a raw command-line string into a Value
// of the given Kind, used by SetSensor (spec §4.2: "type-converts the
// incoming string using the projection's declared type").
func convertString(kind sensor.Kind, s string) (sensor.Value, error) {
	switch kind {
	case sensor.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return sensor.Value{}, err
		}
		return sensor.Value{Float: f}, nil
	case sensor.KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return sensor.Value{}, err
		}
		return sensor.Value{Int: i}, nil
	case sensor.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return sensor.Value{}, err
		}
		return sensor.Value{Bool: b}, nil
	case sensor.KindString, sensor.KindDiscrete:
		return sensor.Value{String: s}, nil
	default:
		return sensor.Value{}, fmt.Errorf("aggregator: unknown sensor kind %v", kind)
	}
}
