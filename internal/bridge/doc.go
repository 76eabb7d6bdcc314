// Package bridge connects a rig Setup to the MQTT bus.
//
// The bridge subscribes to {prefix}/command/+ and executes each request on the
// Setup, answering on {prefix}/ack/{action}. As a setup.Observer it publishes
// every rig event on {prefix}/event/{type} and keeps one retained state
// message per slot on {prefix}/state/{slot}.
//
// Supported actions:
//
//	move      {"x":..,"y":..,"z":..,"theta":..,"wait":true}
//	home      {"slot":"stage_z"}
//	velocity  {"slot":"stage_x","velocity":3}
//	laser     {"slot":"laser1","watts":0.02,"on":true}
//	snap      {}
//
// A move with x, y and z goes through the 3D stage (with origin-move
// protection and an optional wait). A move naming only some axes commands
// those axes directly.
//
// Events are published from a bounded queue so rig operations never block
// on the broker. When the queue is full new events are dropped and logged.
package bridge
