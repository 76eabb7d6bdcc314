// Package device provides typed wrappers around the devices of a light-sheet
// microscope rig.
//
// Every physical device is owned by an external hardware backend and is
// addressed by the label the backend assigned to it. This package turns a
// (slot, label) pair into a typed wrapper and implements the per-category
// behaviour on top of the Backend interface.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                          device package                            │
//	│                                                                    │
//	│  ┌──────────────────┐   Resolve(slot, label)   ┌────────────────┐  │
//	│  │     Registry     │─────────────────────────▶│  Constructor   │  │
//	│  │  (registry.go)   │  model name: exact, "*"  │ (factories.go) │  │
//	│  └────────┬─────────┘                          └───────┬────────┘  │
//	│           │ owns                                       │ builds    │
//	│           ▼                                            ▼           │
//	│  ┌──────────────────┐                 ┌────────────────────────┐   │
//	│  │  XYGroup pool    │◀── X/Y axes ────│ Detector, Source,      │   │
//	│  │  (xystage.go)    │                 │ Motor, XYAxis, Generic │   │
//	│  └──────────────────┘                 └───────────┬────────────┘   │
//	│                                                   │                │
//	└───────────────────────────────────────────────────│────────────────┘
//	                                                    ▼
//	                                          ┌──────────────────┐
//	                                          │     Backend      │
//	                                          └──────────────────┘
//
// # Failures
//
// Backend calls never fail the caller. A failed call is reported as a
// Failure to the FailureSink configured on the Registry and the operation
// returns a sentinel (false, NaN, -1, nil). Only rejected inputs
// (ErrInvalidArgument, ErrUnsupported) and factory conflicts
// (ErrConfigurationConflict) are returned as errors.
//
// # Coupled stages
//
// A two-axis stage is a single backend label that only accepts combined
// moves. XYGroup keeps the last commanded destination of each axis and
// hands out one XYAxis per axis, each a plain Stage. Moving one axis sends
// the other axis's cached destination, querying it first if it is unknown.
//
// # Usage
//
//	sink := &device.RecordingSink{}
//	reg, err := device.NewRegistry(backend, device.DefaultFactories(),
//	    device.WithFailureSink(sink),
//	    device.WithWaitTimeout(10*time.Second),
//	)
//	if err != nil {
//	    return err // ErrConfigurationConflict
//	}
//
//	x, _ := reg.Resolve(device.SlotStageX, "XYStage").(device.Stage)
//	y, _ := reg.Resolve(device.SlotStageY, "XYStage").(device.Stage)
//	x.SetPosition(5)
//	y.SetPosition(7) // moves to (5, 7)
package device
