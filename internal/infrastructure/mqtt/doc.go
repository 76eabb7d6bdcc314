// Package mqtt provides MQTT client connectivity for spimrig.
//
// The rig publishes its state and events to a broker and accepts action
// requests on command topics, so acquisition scripts and dashboards can
// drive the microscope without linking against spimrig:
//
//	acquisition script ↔ MQTT broker ↔ spimrig
//
// This package manages:
//   - Connection with auto-reconnect and subscription restoration
//   - Retained online/offline status with Last Will and Testament
//   - Topic building under a configurable prefix (see Topics)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllCommands(), 1, handler)
//	client.PublishRetained(client.Topics().State("stage_z"), payload)
package mqtt
