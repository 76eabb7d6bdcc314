package setup

import (
	"sync"
	"time"

	"github.com/nerrad567/spimrig/internal/device"
)

// snapWindow is how many recent snap durations feed MeanSnapTime.
const snapWindow = 10

// SnapImage captures one frame with the primary camera.
//
// When the backend does not shutter automatically and a primary laser is
// bound, the laser is switched on, the camera exposes and returns its frame
// and the laser is switched off again, in that order. With automatic
// shuttering the laser is left alone. If the auto-shutter query fails the
// laser is switched explicitly.
func (s *Setup) SnapImage() (*device.Image, error) {
	cam := s.Camera(device.SlotCamera1)
	if cam == nil {
		return nil, ErrNoCamera
	}

	auto, err := s.backend().AutoShutter()
	if err != nil {
		s.report("auto_shutter", "", err)
		auto = false
	}

	laser := s.Laser(device.SlotLaser1)
	manual := !auto && laser != nil

	start := time.Now()
	if manual {
		laser.SetPoweredOn(true)
	}
	img := cam.Snap()
	if manual {
		laser.SetPoweredOn(false)
	}
	elapsed := time.Since(start)

	ev := Event{Type: EventSnap, Slot: device.SlotCamera1, Label: cam.Label(), OK: img != nil, Duration: elapsed}
	if img == nil {
		s.emit(ev)
		return nil, ErrSnapFailed
	}

	s.stats.record(elapsed)
	ev.Width, ev.Height = img.Width, img.Height
	s.emit(ev)
	return img, nil
}

// MeanSnapTime is the mean duration of the last ten successful snaps, zero
// before the first.
func (s *Setup) MeanSnapTime() time.Duration {
	return s.stats.mean()
}

// SnapCount is the number of successful snaps since the setup was built.
func (s *Setup) SnapCount() int {
	return s.stats.count()
}

// snapStats keeps a rolling window of snap durations.
type snapStats struct {
	mu     sync.Mutex
	window []time.Duration
	size   int
	total  int
}

func newSnapStats(size int) *snapStats {
	return &snapStats{size: size}
}

func (st *snapStats) record(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.window = append(st.window, d)
	if len(st.window) > st.size {
		st.window = st.window[len(st.window)-st.size:]
	}
	st.total++
}

func (st *snapStats) mean() time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.window) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range st.window {
		sum += d
	}
	return sum / time.Duration(len(st.window))
}

func (st *snapStats) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.total
}
