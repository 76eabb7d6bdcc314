// Package api implements the HTTP REST API and WebSocket server of the rig.
//
// This package provides:
//   - REST endpoints to inspect and compose the setup, move stages, drive
//     lasers and acquire frames
//   - A read-only view of the event journal
//   - A WebSocket hub pushing rig events to clients filtered by type and slot
//   - Prometheus exposition on /metrics when a handler is supplied
//   - Middleware stack (request ID, logging, recovery, CORS, rate limit)
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/system
//	GET    /api/v1/setup
//	PUT    /api/v1/setup/slots/{slot}     {"label": "ZStage"}
//	DELETE /api/v1/setup/slots/{slot}
//	GET    /api/v1/stage/position
//	PUT    /api/v1/stage/position         {"x":..,"y":..,"z":..,"theta":..,"wait":true}
//	POST   /api/v1/stage/{slot}/home
//	PUT    /api/v1/stage/{slot}/velocity  {"velocity": 3}
//	PUT    /api/v1/lasers/{slot}          {"watts": 0.02, "on": true}
//	POST   /api/v1/snap
//	GET    /api/v1/history?type=&slot=&label=&since=&limit=&offset=
//	GET    /api/v1/ws
//	GET    /metrics
//
// Routes that drive hardware share a per-client token bucket
// (golang.org/x/time/rate) and answer 429 when it is exhausted.
//
// # WebSocket subscriptions
//
// A client receives rig events once it subscribes with a filter on event
// type and slot; an empty list matches all:
//
//	{"type":"subscribe","id":"1","payload":{"events":["move","home"],"slots":["stage_z"]}}
//
// The response carries the current status of the covered slots. A later
// subscribe replaces the filter and unsubscribe clears it.
package api
