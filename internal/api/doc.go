// Package api implements the HTTP front door of dtuhub.
//
// This package provides:
//   - POST /device_request, one request/response exchange with a device
//   - twin and liveness queries over the telemetry registry
//   - the request audit log
//   - a WebSocket feed of twin updates
//   - bearer-token login when security.auth is enabled
//
// # Architecture
//
// Handlers are thin: they decode the HTTP request, call the dtu.Service (or
// the audit repository) and encode the result. Device-level failures such
// as a timeout are ordinary DeviceResponse bodies with overall_state_code
// 400; only a broker outage (503) or an internal fault (500) produces an
// HTTP error.
//
// # Lifecycle
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
