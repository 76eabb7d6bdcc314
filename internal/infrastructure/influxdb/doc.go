// Package influxdb writes rig telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Points are written
// through the batched non-blocking write API:
//
//   - stage_position: axis positions after each move
//   - laser: power setpoints and on/off changes
//   - snap: frame duration and geometry
//   - backend_failure: one point per failed backend call
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteStagePosition("stage_z", "ZStage", map[string]float64{"z": 125}, true, time.Now())
//
// # Error Handling
//
// Write errors arrive asynchronously through SetOnError. Connection and
// health check errors are returned directly.
package influxdb
