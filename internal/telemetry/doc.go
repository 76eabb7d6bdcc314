// Package telemetry turns rig events and backend failures into metrics.
//
// Metrics exposes Prometheus collectors on its own registry; InfluxSink
// forwards the same stream to InfluxDB as time-series points. Both
// implement setup.Observer and device.FailureSink, so wiring is:
//
//	metrics := telemetry.NewMetrics()
//	registry, _ := device.NewRegistry(backend, device.DefaultFactories(),
//	    device.WithFailureSink(device.MultiSink(logSink, metrics)))
//	rig.Subscribe(metrics)
//	router.Handle("/metrics", metrics.Handler())
package telemetry
