// Package fleet synchronises the Device Registry with the MQTT bus and with
// connected dashboard sessions.
//
// It contains the five moving parts that sit around device.Registry:
//
//   - Matcher: classifies bus topics into typed Routes
//   - Router: applies announcements and measurements to the registry
//   - Commands: applies client intents (register, push output, delete, state)
//   - Monitor: periodically evicts devices that stopped reporting
//   - Broadcaster: pushes the partitioned state to every session on change
//
// # Data Flow
//
//	MQTT ──▶ Router ──▶ Registry ──change──▶ Broadcaster ──▶ all sessions
//	client ──▶ Commands ──▶ Registry (+ MQTT publish)
//	ticker ──▶ Monitor ──▶ Registry (+ MQTT publish)
//
// # Topics
//
// With namespace "fse2021/200012345":
//
//	fse2021/200012345/devices/AA:BB:CC:DD:EE:FF   announce / register / unregister
//	fse2021/200012345/kitchen/temperature         {"value": 21.5}
//	fse2021/200012345/kitchen/humidity            {"value": 40}
//	fse2021/200012345/kitchen/state               {"in": 1}
//	fse2021/200012345/kitchen/command             {"out": 1}
//
// Transports are reached only through the Bus and Pusher interfaces, so
// every component can be tested without a broker or a WebSocket.
package fleet
