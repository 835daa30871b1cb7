package influxdb

import (
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/dtu-hub/internal/device"
)

// Measurement is the name every twin record is written under.
const Measurement = "device_telemetry"

// Ingested implements dtu.Sink: each new twin record becomes one point.
// Records without any numeric field are skipped.
func (c *Client) Ingested(upd device.Update) {
	if !c.IsConnected() {
		return
	}
	if p := TelemetryPoint(upd); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// TelemetryPoint converts a twin update into a point tagged by identity.
//
// Numbers and booleans become fields under their own key; a []float64
// becomes <key>_0, <key>_1, ... Strings are not exported. It returns nil
// when nothing is left to write.
func TelemetryPoint(upd device.Update) *write.Point {
	fields := make(map[string]any)
	for k, v := range upd.Record.Data {
		switch val := v.(type) {
		case int, int64, uint8, float64, bool:
			fields[k] = val
		case []float64:
			for i, f := range val {
				fields[k+"_"+strconv.Itoa(i)] = f
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}

	id := upd.Identity
	tags := map[string]string{
		"dtu_sn":      id.DTUSN,
		"device_type": string(id.DeviceType),
		"name":        id.Name,
	}
	if id.PhysicalID != "" {
		tags["physical_id"] = id.PhysicalID
	}
	return write.NewPoint(Measurement, tags, fields, upd.Record.ReceivedAt)
}
