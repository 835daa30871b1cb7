// Package device holds the gateway's data model and the digital twin
// registry.
//
// A twin is the in-memory record of one field device as seen on the
// telemetry stream: its Identity (name, dtu_sn, device type, physical id)
// and a bounded history of decoded records.
//
// # Architecture
//
//	 dtu/<sn>/outbox ──▶ codec.Registry.Recognize ──▶ Registry.Ingest
//	                                                     │
//	                          ┌──────────────────────────┤
//	                          ▼                          ▼
//	                  Registry.Query              Registry.State
//	               (GET /api/v1/twins)       (GET /api/v1/dtu_state)
//
// History is a FIFO capped per device type (the adapter's MaxRecords).
// Once the cap is reached each new record evicts the oldest one.
//
// Nothing is persisted: the registry starts empty on every boot.
//
// # Usage
//
//	twins := device.NewRegistry()
//	twins.SetLogger(log)
//
//	upd, err := twins.Ingest(identity, device.Record{ReceivedAt: time.Now().UTC(), Data: data}, 100)
//
//	list, err := twins.Query(device.Query{DTUSN: "02500525102900023669"})
package device
