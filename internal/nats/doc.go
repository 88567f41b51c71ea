// Package nats mirrors the streaming session onto NATS and accepts remote
// start/stop requests.
//
// # Architecture
//
//   - Server: optional embedded NATS server for boards without a broker
//   - Client: publishes session state changes and pipeline faults from the
//     event bus, and answers control requests with the session controller
//
// # Subject Hierarchy
//
//	camstream.{node}.state     # session state changes (node → subscribers)
//	camstream.{node}.fault     # capture or publish process died while streaming
//	camstream.{node}.control   # request/reply: {"action":"start"} or {"action":"stop"}
//
// State and fault messages are fire-and-forget (core NATS, no JetStream).
// The client degrades to a no-op when NATS is unavailable.
//
// # Debugging with nats CLI
//
// Watch everything a node publishes:
//
//	nats sub "camstream.>"
//
// Stop streaming on node "garage":
//
//	nats req camstream.garage.control '{"action":"stop","reason":"manual"}'
package nats
