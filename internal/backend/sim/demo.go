package sim

import "github.com/nerrad567/spimrig/internal/device"

// Labels of the demo rig.
const (
	DemoXYStage  = "XYStage"
	DemoFocus    = "ZStage"
	DemoRotator  = "Twister"
	DemoLaser    = "Laser0"
	DemoLaser2   = "Laser1"
	DemoCamera   = "Cam0"
	DemoCamera2  = "Cam1"
	DemoSyncLine = "Arduino"
)

// DemoDevices returns a complete light-sheet rig: a Picard XY, Z and
// rotation stage, two lasers, two cameras and a synchronizer.
func DemoDevices() []DeviceSpec {
	velocities := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}

	return []DeviceSpec{
		{
			Label:    DemoXYStage,
			Model:    device.ModelPicardXYStage,
			Category: device.CategoryXYStage,
			Properties: map[string]string{
				"X-Velocity": "5", "X-Min": "0", "X-Max": "8000", "X-StepSize": "1.5",
				"Y-Velocity": "5", "Y-Min": "0", "Y-Max": "8000", "Y-StepSize": "1.5",
			},
			Allowed: map[string][]string{"X-Velocity": velocities, "Y-Velocity": velocities},
		},
		{
			Label:      DemoFocus,
			Model:      device.ModelPicardZStage,
			Category:   device.CategoryStage,
			Properties: map[string]string{"Velocity": "5", "Min": "0", "Max": "6000", "StepSize": "1.5"},
			Allowed:    map[string][]string{"Velocity": velocities},
		},
		{
			Label:      DemoRotator,
			Model:      device.ModelPicardTwister,
			Category:   device.CategoryStage,
			Properties: map[string]string{"Velocity": "1"},
			Allowed:    map[string][]string{"Velocity": velocities},
		},
		{
			Label:    DemoLaser,
			Model:    device.ModelCobolt,
			Category: device.CategoryShutter,
			Properties: map[string]string{
				"PowerSetpoint":       "20",
				"Minimum Laser Power": "0",
				"Maximum Laser Power": "100",
			},
		},
		{
			Label:    DemoLaser2,
			Model:    device.ModelCoherentObis,
			Category: device.CategoryShutter,
			Properties: map[string]string{
				"PowerSetpoint":       "10",
				"Minimum Laser Power": "0.001",
				"Maximum Laser Power": "0.05",
			},
		},
		{Label: DemoCamera, Model: "DemoCamera", Category: device.CategoryCamera},
		{Label: DemoCamera2, Model: "DemoCamera", Category: device.CategoryCamera},
		{Label: DemoSyncLine, Model: "Arduino-Switch", Category: device.CategoryGeneric},
	}
}
