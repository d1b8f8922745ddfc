// Package device provides the in-memory Device Registry for the central server.
//
// The registry is the single source of truth for every device the server
// knows about. It is volatile: after a restart it is rebuilt from device
// announcements and client registrations.
//
// # Key Types
//
//   - Record: one device (id, zone, actuator channels, measurements, lifecycle)
//   - Registry: thread-safe map of Records with a single change listener
//   - State: the active/pending partition pushed to dashboards
//
// # Lifecycle
//
//	announcement ──▶ pending ──register──▶ active ──delete──▶ pending ──sweep──▶ (evicted)
//	                    ▲                                          │
//	                    └──────────── re-announcement ◀────────────┘
//
// # Usage
//
//	reg := device.NewRegistry()
//	reg.SetLogger(log)
//	reg.SetChangeCallback(func() { broadcast(reg.Snapshot()) })
//
//	_ = reg.Set("AA:BB:CC:DD:EE:FF", device.NewActive("AA:BB:CC:DD:EE:FF", "kitchen", "lamp", "switch"))
//	reg.UpdateZone("kitchen", func(r *device.Record) { r.Temperature = device.Float(21.5) })
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Every mutation commits under a
// write lock and then invokes the change listener exactly once per
// committed record change, outside the lock.
package device
