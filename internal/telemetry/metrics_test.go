package telemetry

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/spimrig/internal/backend/sim"
	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/setup"
)

func ptr[T any](v T) *T { return &v }

func TestMetrics_Events(t *testing.T) {
	m := NewMetrics()

	m.Notify(setup.Event{Type: setup.EventMove, Slot: device.SlotStageZ, OK: true, Value: ptr(120.0)})
	m.Notify(setup.Event{Type: setup.EventMove, OK: true, Position: &setup.Vector{X: 1, Y: 2, Z: 3}})
	m.Notify(setup.Event{Type: setup.EventMove, Slot: device.SlotStageZ, OK: false, Value: ptr(999.0)})
	m.Notify(setup.Event{Type: setup.EventLaser, Slot: device.SlotLaser1, OK: true, Value: ptr(0.02)})
	m.Notify(setup.Event{Type: setup.EventLaser, Slot: device.SlotLaser1, OK: true, On: ptr(true)})
	m.Notify(setup.Event{Type: setup.EventSnap, OK: true, Duration: 20 * time.Millisecond})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"ok moves", testutil.ToFloat64(m.events.WithLabelValues("move", "true")), 2},
		{"failed moves", testutil.ToFloat64(m.events.WithLabelValues("move", "false")), 1},
		// The failed move must not overwrite the 3D move's z.
		{"z position", testutil.ToFloat64(m.position.WithLabelValues("stage_z")), 3},
		{"x position", testutil.ToFloat64(m.position.WithLabelValues("stage_x")), 1},
		{"laser power", testutil.ToFloat64(m.power.WithLabelValues("laser1")), 0.02},
		{"laser on", testutil.ToFloat64(m.laserOn.WithLabelValues("laser1")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.snaps); n != 1 {
		t.Errorf("snap histogram series = %d, want 1", n)
	}
}

func TestMetrics_Failures(t *testing.T) {
	m := NewMetrics()

	m.Report(device.Failure{Op: "set_position", Label: "ZStage", Err: device.ErrBackendCall})
	m.Report(device.Failure{Op: "wait", Label: "ZStage", Err: fmt.Errorf("%w: 30s", device.ErrWaitTimeout)})

	if got := testutil.ToFloat64(m.failures.WithLabelValues("set_position")); got != 1 {
		t.Errorf("set_position failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.timeouts); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
}

func TestMetrics_WiredIntoRig(t *testing.T) {
	m := NewMetrics()
	b := sim.New(sim.DemoDevices(), sim.WithAutoShutter(false))
	reg := device.MustNewRegistry(b, device.DefaultFactories(), device.WithFailureSink(m))
	rig := setup.New(reg, setup.WithObserver(m))
	if err := rig.Bind(device.SlotCamera1, sim.DemoCamera); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := rig.Bind(device.SlotStageZ, sim.DemoFocus); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if _, err := rig.SnapImage(); err != nil {
		t.Fatalf("SnapImage() error = %v", err)
	}
	b.Fail(sim.OpSetPosition, nil)
	if rig.ZStage().SetPosition(50) {
		t.Error("SetPosition() = true with an injected failure")
	}

	if got := testutil.ToFloat64(m.events.WithLabelValues("snap", "true")); got != 1 {
		t.Errorf("snap events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("set_position")); got != 1 {
		t.Errorf("set_position failures = %v, want 1", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.Notify(setup.Event{Type: setup.EventHome, OK: true})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`spimrig_events_total{ok="true",type="home"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
