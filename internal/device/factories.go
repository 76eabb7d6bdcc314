package device

// Model names reported by the backend for vendor-specific hardware.
const (
	ModelCobolt        = "Cobolt"
	ModelCoherentCube  = "CoherentCube"
	ModelCoherentObis  = "CoherentObis"
	ModelPicardTwister = "Picard Twister"
	ModelPicardXYStage = "Picard XY Stage"
	ModelPicardZStage  = "Picard Z Stage"
)

// DefaultFactories returns the built-in factory table. Each call returns a
// fresh slice, so callers may append their own rows before building a
// Registry.
func DefaultFactories() []Factory {
	cameras := []Slot{SlotCamera1, SlotCamera2}
	lasers := []Slot{SlotLaser1, SlotLaser2}
	horizontal := []Slot{SlotStageX, SlotStageY}

	return []Factory{
		{Model: WildcardModel, Slots: cameras, New: NewCamera},

		{Model: ModelCobolt, Slots: lasers, New: laserConstructor(LaserCobolt)},
		{Model: ModelCoherentCube, Slots: lasers, New: laserConstructor(LaserCoherentCube)},
		{Model: ModelCoherentObis, Slots: lasers, New: laserConstructor(LaserCoherentObis)},
		{Model: WildcardModel, Slots: lasers, New: laserConstructor(LaserGeneric)},

		{Model: WildcardModel, Slots: []Slot{SlotStageTheta}, New: motorConstructor(RotatorGeneric)},
		{Model: ModelPicardTwister, Slots: []Slot{SlotStageTheta}, New: motorConstructor(RotatorPicardTwister)},

		{Model: WildcardModel, Slots: horizontal, New: xyAxisConstructor(XYGeneric)},
		{Model: ModelPicardXYStage, Slots: horizontal, New: xyAxisConstructor(XYPicard)},

		{Model: ModelPicardZStage, Slots: []Slot{SlotStageX, SlotStageY, SlotStageZ}, New: motorConstructor(StagePicardLinear)},
		{Model: WildcardModel, Slots: []Slot{SlotStageZ}, New: motorConstructor(StageGeneric)},

		{Model: WildcardModel, Slots: []Slot{SlotSynchronizer}, New: NewGeneric},
	}
}
