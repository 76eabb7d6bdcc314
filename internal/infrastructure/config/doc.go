// Package config handles loading and validating spimrig configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SPIMRIG_SECTION_KEY)
//   - Validation of required fields
//   - Default value handling
//
// The rig section names the hardware backend, the labels of the primary
// devices and any slot pins. Slot keys are the device slot names
// ("stage_x", "laser2", "synchronizer", ...).
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Rig.Devices.XYStage)
package config
