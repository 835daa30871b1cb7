// Package codec translates between structured device requests and the raw
// frames that travel through a DTU.
//
// Each device family has one Adapter. An adapter serialises a request into
// a frame, decides whether a frame received later answers that request,
// decodes the answer, and recognises unsolicited frames pushed by the
// device on its own.
//
// # Adapters
//
//   - ProbeAdapter: YiTong tank-truck probes. BCD fields, AA..BB framing, sum8 checksum.
//   - GPSModbusAdapter: EBYTE E108-D01 GPS over Modbus RTU with CRC16.
//   - NMEAAdapter: $GNRMC heartbeats published by the DTU itself. Receive only.
//
// # Usage
//
//	reg := codec.Default(codec.Options{})
//	a, err := reg.Resolve(device.DeviceTypeProbeYiTongTankTruck)
//	frame, err := a.Serialize(req)
//	...
//	if rec, ok := reg.Recognize(topic, payload); ok {
//	    twins.Ingest(rec.Identity, rec.Record, rec.MaxRecords)
//	}
//
// Adapters never panic on malformed input. Pairing and recognition report
// false; Deserialize returns an error wrapping ErrMalformedFrame.
package codec
