package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nerrad567/spimrig/internal/device"
)

func TestBackend_CallLog(t *testing.T) {
	b := New(DemoDevices(), WithAutoShutter(false))

	if err := b.SetXYPosition(DemoXYStage, 5, 7); err != nil {
		t.Fatalf("SetXYPosition() error = %v", err)
	}
	if _, err := b.AutoShutter(); err != nil {
		t.Fatalf("AutoShutter() error = %v", err)
	}

	want := []string{"setXYPosition(XYStage,5,7)", "autoShutter()"}
	if diff := cmp.Diff(want, b.CallStrings()); diff != "" {
		t.Errorf("call log mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"autoShutter()"}, b.CallStrings(OpAutoShutter)); diff != "" {
		t.Errorf("filtered call log mismatch (-want +got):\n%s", diff)
	}

	b.ResetCalls()
	if len(b.Calls()) != 0 {
		t.Error("ResetCalls() left calls behind")
	}
}

func TestBackend_FailAndHeal(t *testing.T) {
	b := New(DemoDevices())
	b.Fail(OpGetXYPosition, nil)

	if _, _, err := b.XYPosition(DemoXYStage); !errors.Is(err, ErrInjected) {
		t.Errorf("XYPosition() error = %v, want ErrInjected", err)
	}
	b.Heal(OpGetXYPosition)
	if _, _, err := b.XYPosition(DemoXYStage); err != nil {
		t.Errorf("XYPosition() after Heal error = %v", err)
	}
}

func TestBackend_UnknownDevice(t *testing.T) {
	b := New(nil)
	if _, err := b.ModelName("nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("ModelName() error = %v, want ErrUnknownDevice", err)
	}
}

func TestBackend_LoadedDevices(t *testing.T) {
	b := New(DemoDevices())

	cams, err := b.LoadedDevicesOfCategory(device.CategoryCamera)
	if err != nil {
		t.Fatalf("LoadedDevicesOfCategory() error = %v", err)
	}
	if diff := cmp.Diff([]string{DemoCamera, DemoCamera2}, cams); diff != "" {
		t.Errorf("cameras mismatch (-want +got):\n%s", diff)
	}

	b.Unload(DemoCamera2)
	cams, _ = b.LoadedDevicesOfCategory(device.CategoryCamera)
	if diff := cmp.Diff([]string{DemoCamera}, cams); diff != "" {
		t.Errorf("cameras after unload mismatch (-want +got):\n%s", diff)
	}
}

func TestBackend_AllowedValuesEnforced(t *testing.T) {
	b := New(DemoDevices())
	if err := b.SetProperty(DemoFocus, "Velocity", "11"); err == nil {
		t.Error("SetProperty() accepted a value outside the allowed set")
	}
	if err := b.SetPropertyFloat(DemoFocus, "Velocity", 3); err != nil {
		t.Errorf("SetPropertyFloat() error = %v", err)
	}
	if v, _ := b.Property(DemoFocus, "Velocity"); v != "3" {
		t.Errorf("Velocity = %q, want 3", v)
	}
}

func TestBackend_SnapAndImage(t *testing.T) {
	b := New(DemoDevices(), WithFrameSize(4, 2))

	if _, err := b.Image(); err == nil {
		t.Error("Image() before a snap succeeded")
	}
	if err := b.SnapImage(); err != nil {
		t.Fatalf("SnapImage() error = %v", err)
	}
	img, err := b.Image()
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if img.Width != 4 || img.Height != 2 || len(img.Pixels) != 8 {
		t.Errorf("image = %dx%d with %d pixels, want 4x2 with 8", img.Width, img.Height, len(img.Pixels))
	}
	if img.Tags["Camera"] != DemoCamera {
		t.Errorf("Camera tag = %q, want %q", img.Tags["Camera"], DemoCamera)
	}
}

func TestBackend_MoveKeepsDeviceBusy(t *testing.T) {
	b := New(DemoDevices(), WithMoveTime(time.Hour))
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if err := b.SetPosition(DemoFocus, 100); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	if busy, _ := b.DeviceBusy(DemoFocus); !busy {
		t.Error("DeviceBusy() = false right after a move")
	}

	now = now.Add(2 * time.Hour)
	if busy, _ := b.DeviceBusy(DemoFocus); busy {
		t.Error("DeviceBusy() = true after the move time elapsed")
	}
}

func TestBackend_HomeResetsPosition(t *testing.T) {
	b := New(DemoDevices())
	_ = b.SetXYPosition(DemoXYStage, 10, 20)
	if err := b.Home(DemoXYStage); err != nil {
		t.Fatalf("Home() error = %v", err)
	}
	x, y, _ := b.XYPosition(DemoXYStage)
	if x != 0 || y != 0 {
		t.Errorf("position after home = (%v, %v), want origin", x, y)
	}
}
