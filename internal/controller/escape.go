package controller

import (
	"encoding/json"

	"github.com/mpifr-bdr/reynard/internal/katcp"
)

// escapeJSON marshals v to JSON and applies the KATCP wire escape,
// producing the packed-dictionary argument form spec §6 requires for
// configure's <config>/<sensors> arguments.
func escapeJSON(v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return katcp.Escape(string(body)), nil
}
