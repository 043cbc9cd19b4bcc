// Package telemetry builds the JSON messages a node sends to the collector
// and parses them back on the collector side.
package telemetry

import (
	"encoding/json"
	"time"

	"creasense-go/errcode"
	"creasense-go/types"
	"creasense-go/x/strx"

	"github.com/google/uuid"
)

// MessageType tags every telemetry message on the wire.
const MessageType = "sensor_data"

// Soil probe ADC scale, used for the legacy voltage field.
const (
	ADCFullScale = 4095.0
	ADCVRef      = 3.3
)

// Event is one transmitted reading.
type Event struct {
	Sensor   string
	Kind     types.Kind
	Value    float64
	Category string
	AppValue float64
	Sequence uint64
	Uptime   time.Duration
	BootID   string
	Extra    map[string]float64
}

// Encoder stamps readings with identity, sequence and uptime. It is owned by
// the scheduler goroutine and not safe for concurrent use.
type Encoder struct {
	sensor string
	kind   types.Kind
	bootID string
	start  time.Time
	seq    uint64
}

// NewEncoder returns an Encoder for one boot of sensor. Uptime is measured
// from start.
func NewEncoder(sensor string, kind types.Kind, bootID uuid.UUID, start time.Time) *Encoder {
	return &Encoder{sensor: sensor, kind: kind, bootID: bootID.String(), start: start}
}

// NewBootID returns a time-ordered id for this boot.
func NewBootID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// Sequence returns the sequence number of the last produced event.
func (e *Encoder) Sequence() uint64 { return e.seq }

func (e *Encoder) BootID() string { return e.bootID }

// Encode produces the next event for r. The sequence advances once per
// produced event and wraps silently.
func (e *Encoder) Encode(r types.Reading, category string, appValue float64) (Event, []byte, error) {
	if !r.Valid {
		return Event{}, nil, errcode.New(errcode.SensorFault, "telemetry.encode", r.Err)
	}
	ev := Event{
		Sensor:   e.sensor,
		Kind:     e.kind,
		Value:    r.Value,
		Category: category,
		AppValue: appValue,
		Sequence: e.seq + 1,
		BootID:   e.bootID,
		Extra:    r.Extra,
	}
	if !r.CapturedAt.IsZero() && r.CapturedAt.After(e.start) {
		ev.Uptime = r.CapturedAt.Sub(e.start)
	}
	b, err := Marshal(ev)
	if err != nil {
		return Event{}, nil, err
	}
	e.seq = ev.Sequence
	return ev, b, nil
}

// Marshal renders ev as one self-contained JSON object, generic fields
// first-class and the per-kind legacy aliases alongside.
func Marshal(ev Event) ([]byte, error) {
	m := map[string]any{
		"type":      MessageType,
		"sensor":    ev.Sensor,
		"kind":      string(ev.Kind),
		"value":     ev.Value,
		"category":  ev.Category,
		"app_value": ev.AppValue,
		"seq":       ev.Sequence,
		"uptime_ms": ev.Uptime.Milliseconds(),
	}
	if ev.BootID != "" {
		m["boot_id"] = ev.BootID
	}
	if len(ev.Extra) > 0 {
		m["extra"] = ev.Extra
	}
	switch ev.Kind {
	case types.KindLight:
		m["lux"] = ev.Value
		m["light_condition"] = ev.Category
		m["light_app_value"] = ev.AppValue
	case types.KindSoil:
		m["raw_value"] = ev.Value
		m["soil_condition"] = ev.Category
		m["moisture_app_value"] = ev.AppValue
		m["moisture_percent"] = ev.AppValue * 100
		m["voltage"] = ev.Value / ADCFullScale * ADCVRef
	case types.KindTemperature:
		m["temperature"] = ev.Value
		m["temp_condition"] = ev.Category
		m["temp_app_value"] = ev.AppValue
		if h, ok := ev.Extra[types.ExtraHumidity]; ok {
			m["humidity_percent"] = h
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, errcode.New(errcode.Malformed, "telemetry.marshal", err)
	}
	return b, nil
}

type wire struct {
	Type     string             `json:"type"`
	Sensor   string             `json:"sensor"`
	Kind     string             `json:"kind"`
	Value    *float64           `json:"value"`
	Category string             `json:"category"`
	AppValue *float64           `json:"app_value"`
	Seq      uint64             `json:"seq"`
	UptimeMs int64              `json:"uptime_ms"`
	BootID   string             `json:"boot_id"`
	Extra    map[string]float64 `json:"extra"`

	Lux             *float64 `json:"lux"`
	LightCondition  string   `json:"light_condition"`
	LightAppValue   *float64 `json:"light_app_value"`
	RawValue        *float64 `json:"raw_value"`
	SoilCondition   string   `json:"soil_condition"`
	MoistureApp     *float64 `json:"moisture_app_value"`
	Temperature     *float64 `json:"temperature"`
	TempCondition   string   `json:"temp_condition"`
	TempAppValue    *float64 `json:"temp_app_value"`
	HumidityPercent *float64 `json:"humidity_percent"`
}

// Decode parses one telemetry message. Messages from older firmware that
// carry only the per-kind fields are accepted; the kind is inferred from
// which fields are present.
func Decode(b []byte) (Event, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return Event{}, errcode.New(errcode.Malformed, "telemetry.decode", err)
	}
	if w.Type != MessageType {
		return Event{}, errcode.Newf(errcode.Malformed, "telemetry.decode", "unexpected type "+w.Type)
	}
	ev := Event{
		Sensor:   w.Sensor,
		Kind:     types.Kind(w.Kind),
		Category: w.Category,
		Sequence: w.Seq,
		Uptime:   time.Duration(w.UptimeMs) * time.Millisecond,
		BootID:   w.BootID,
		Extra:    w.Extra,
	}
	value, app := w.Value, w.AppValue
	switch {
	case w.Lux != nil || w.LightCondition != "":
		ev.Kind = pick(ev.Kind, types.KindLight)
		value, app = first(value, w.Lux), first(app, w.LightAppValue)
		ev.Category = strx.Coalesce(ev.Category, w.LightCondition)
	case w.RawValue != nil || w.SoilCondition != "":
		ev.Kind = pick(ev.Kind, types.KindSoil)
		value, app = first(value, w.RawValue), first(app, w.MoistureApp)
		ev.Category = strx.Coalesce(ev.Category, w.SoilCondition)
	case w.Temperature != nil || w.TempCondition != "":
		ev.Kind = pick(ev.Kind, types.KindTemperature)
		value, app = first(value, w.Temperature), first(app, w.TempAppValue)
		ev.Category = strx.Coalesce(ev.Category, w.TempCondition)
		if w.HumidityPercent != nil {
			if _, ok := ev.Extra[types.ExtraHumidity]; !ok {
				if ev.Extra == nil {
					ev.Extra = map[string]float64{}
				}
				ev.Extra[types.ExtraHumidity] = *w.HumidityPercent
			}
		}
	}
	if value == nil || app == nil || ev.Category == "" {
		return Event{}, errcode.Newf(errcode.Malformed, "telemetry.decode", "missing value, app_value or category")
	}
	ev.Value, ev.AppValue = *value, *app
	return ev, nil
}

func first(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func pick(k, fallback types.Kind) types.Kind {
	if k != "" {
		return k
	}
	return fallback
}
