// Package api implements the HTTP REST API and WebSocket hub that connect
// dashboards to the device fleet.
//
// This package provides:
//   - REST endpoints for the device partition, registration, output
//     commands and soft deletes
//   - A WebSocket hub implementing fleet.Pusher: every session receives
//     the state broadcast, and sends intents (register, push_output,
//     delete, request_state, message) as {"type","id","payload"} frames
//   - The audit trail query endpoint
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Wire format
//
// Events pushed to sessions:
//
//	{"type":"event","event_type":"state","timestamp":"...","payload":{"active":[...],"pending":[...]}}
//
// Intent results are correlated by the intent id:
//
//	{"type":"response","id":"req-1","payload":{...record...}}
//	{"type":"error","id":"req-1","payload":{"code":"not_found","message":"device not found"}}
//
// # Graceful Degradation
//
// Once started, the server keeps serving while the MQTT connection is
// down: reads and WebSocket sessions keep working, device commands still
// update the registry, and the bus publish failure is only logged.
// /health reports "degraded" until the client reconnects.
package api
