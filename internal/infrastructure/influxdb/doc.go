// Package influxdb exports digital twin records to InfluxDB v2.
//
// The Client is a dtu.Sink: every record the ingest loop adds to a twin is
// written as one device_telemetry point tagged with the device identity.
// The export is write-only; twins are never rebuilt from it.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without export
//	}
//	defer client.Close()
package influxdb
