package aggregator

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"strconv"

	"github.com/mpifr-bdr/reynard/internal/katcp"
	"github.com/mpifr-bdr/reynard/internal/sensor"
)

// RegisterCommands wires the Aggregator's command surface (spec.md
// §6) onto a shared katcp.Dispatcher: sensor-set, json, xml,
// device-status.
func (a *Aggregator) RegisterCommands(d *katcp.Dispatcher) {
	d.Register("sensor-set", a.handleSensorSet)
	d.Register("json", a.handleJSON)
	d.Register("xml", a.handleXML)
	d.Register("device-status", a.handleDeviceStatus)
}

// handleDeviceStatus reports "fail" if any sensor is currently
// non-nominal (markStale flips every sensor to unknown on an ingest
// outage), and "ok" otherwise. Unlike UBI's tri-valued health, there
// is no "degraded" level.
func (a *Aggregator) handleDeviceStatus(_ context.Context, _ []string) katcp.Reply {
	for _, r := range a.GetSnapshot() {
		if r.Status != sensor.StatusNominal {
			return katcp.Okay("fail")
		}
	}
	return katcp.Okay("ok")
}

func (a *Aggregator) handleSensorSet(_ context.Context, args []string) katcp.Reply {
	if len(args) != 2 {
		return katcp.Failf("sensor-set requires <name> <value>")
	}
	if err := a.SetSensor(args[0], args[1]); err != nil {
		return katcp.Failf("%v", err)
	}
	return katcp.Okay()
}

type snapshotEntry struct {
	Name      string  `json:"name"`
	Value     any     `json:"value"`
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

func (a *Aggregator) handleJSON(_ context.Context, _ []string) katcp.Reply {
	snap := a.GetSnapshot()
	entries := make([]snapshotEntry, 0, len(snap))
	for name, r := range snap {
		entries = append(entries, snapshotEntry{
			Name: name, Value: valueAsAny(name, r), Status: r.Status.String(),
			Timestamp: float64(r.Timestamp.UnixNano()) / 1e9,
		})
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return katcp.Failf("json: %v", err)
	}
	return katcp.Okay(katcp.Escape(string(body)))
}

type xmlSensor struct {
	XMLName     xml.Name `xml:"sensor"`
	Name        string   `xml:"name"`
	Type        string   `xml:"type"`
	Unit        string   `xml:"unit,omitempty"`
	Description string   `xml:"description,omitempty"`
	Status      string   `xml:"status"`
	Value       string   `xml:"value"`
}

type xmlSnapshot struct {
	XMLName xml.Name    `xml:"snapshot"`
	Sensors []xmlSensor `xml:"sensor"`
}

func (a *Aggregator) handleXML(_ context.Context, _ []string) katcp.Reply {
	snap := a.GetSnapshot()
	out := xmlSnapshot{Sensors: make([]xmlSensor, 0, len(snap))}
	for name, r := range snap {
		p := Projections()[name]
		out.Sensors = append(out.Sensors, xmlSensor{
			Name: name, Type: p.Kind.String(), Unit: p.Unit, Description: p.Description,
			Status: r.Status.String(), Value: renderValue(p.Kind, r),
		})
	}
	body, err := xml.Marshal(out)
	if err != nil {
		return katcp.Failf("xml: %v", err)
	}
	return katcp.Okay(katcp.Escape(string(body)))
}

func valueAsAny(name string, r sensor.Reading) any {
	p := Projections()[name]
	switch p.Kind {
	case sensor.KindFloat:
		return r.Value.Float
	case sensor.KindInt:
		return r.Value.Int
	case sensor.KindBool:
		return r.Value.Bool
	default:
		return r.Value.String
	}
}

func renderValue(kind sensor.Kind, r sensor.Reading) string {
	switch kind {
	case sensor.KindFloat:
		return strconv.FormatFloat(r.Value.Float, 'g', -1, 64)
	case sensor.KindInt:
		return strconv.FormatInt(r.Value.Int, 10)
	case sensor.KindBool:
		return strconv.FormatBool(r.Value.Bool)
	default:
		return r.Value.String
	}
}
