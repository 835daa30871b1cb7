// Package dtu composes the gateway core.
//
// A Service turns a device.Request into a device.Response by resolving the
// codec adapter for the device type, running one correlated exchange over
// the DTU's inbox/outbox topics, and decoding the paired response. Its Run
// loop consumes every DTU outbox, offers each frame to the codec registry
// and keeps the digital twins current.
//
// Expected operating failures (no answer, unknown device type, action the
// adapter cannot encode) come back as a Response with state code 400.
// Only a missing broker connection or the caller's own context ending are
// returned as errors.
package dtu
