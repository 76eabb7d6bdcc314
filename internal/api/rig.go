package api

import (
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/setup"
)

// SetupResponse describes the composed rig.
type SetupResponse struct {
	Slots        []setup.SlotStatus `json:"slots"`
	Capabilities setup.Capabilities `json:"capabilities"`
	MeanSnapMS   float64            `json:"mean_snap_ms"`
	SnapCount    int                `json:"snap_count"`
}

// BindRequest binds a device label to a slot.
type BindRequest struct {
	Label string `json:"label"`
}

// PositionResponse is the live stage position. Axes that could not be read
// are null.
type PositionResponse struct {
	X     *float64 `json:"x"`
	Y     *float64 `json:"y"`
	Z     *float64 `json:"z"`
	Theta *float64 `json:"theta"`
}

// MoveRequest moves the stage. With x, y and z all set the move goes
// through the 3D stage and may wait; otherwise only the given axes move.
type MoveRequest struct {
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Z     *float64 `json:"z,omitempty"`
	Theta *float64 `json:"theta,omitempty"`
	Wait  bool     `json:"wait,omitempty"`
}

// VelocityRequest sets a stage velocity.
type VelocityRequest struct {
	Velocity *float64 `json:"velocity"`
}

// LaserRequest sets laser power in watts and/or switches the laser.
type LaserRequest struct {
	Watts *float64 `json:"watts,omitempty"`
	On    *bool    `json:"on,omitempty"`
}

// SnapResponse describes a captured frame. Pixels are not returned.
type SnapResponse struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Tags       map[string]string `json:"tags,omitempty"`
	MeanSnapMS float64           `json:"mean_snap_ms"`
}

func (s *Server) handleGetSetup(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.setupResponse())
}

func (s *Server) setupResponse() SetupResponse {
	return SetupResponse{
		Slots:        s.rig.Status(),
		Capabilities: s.rig.Capabilities(),
		MeanSnapMS:   durationMS(s.rig.MeanSnapTime()),
		SnapCount:    s.rig.SnapCount(),
	}
}

func (s *Server) handleBindSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var req BindRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Label == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "label is required")
		return
	}

	if err := s.rig.Bind(slot, req.Label); err != nil {
		writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.setupResponse())
}

func (s *Server) handleUnbindSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	s.rig.Unbind(slot)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, _ *http.Request) {
	var resp PositionResponse
	if s.rig.Has3DStage() {
		pos := s.rig.Position()
		resp.X, resp.Y, resp.Z = finite(pos.X), finite(pos.Y), finite(pos.Z)
	}
	if s.rig.HasAngle() {
		resp.Theta = finite(s.rig.Angle())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetPosition(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	switch {
	case req.X != nil && req.Y != nil && req.Z != nil:
		target := setup.Vector{X: *req.X, Y: *req.Y, Z: *req.Z}
		if err := s.rig.MoveTo(r.Context(), target, req.Wait); err != nil {
			writeRigError(w, err)
			return
		}
		if req.Theta != nil {
			s.rig.SetPosition(nil, nil, nil, req.Theta)
		}
	case req.X == nil && req.Y == nil && req.Z == nil && req.Theta == nil:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "at least one axis is required")
		return
	default:
		if !s.rig.Has3DStage() {
			writeRigError(w, setup.ErrNo3DStage)
			return
		}
		s.rig.SetPosition(req.X, req.Y, req.Z, req.Theta)
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	if err := s.rig.Home(slot); err != nil {
		writeRigError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSetVelocity(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var req VelocityRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Velocity == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "velocity is required")
		return
	}

	if err := s.rig.SetVelocity(slot, *req.Velocity); err != nil {
		writeRigError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetLaser(w http.ResponseWriter, r *http.Request) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}

	var req LaserRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Watts == nil && req.On == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "watts or on is required")
		return
	}

	if req.Watts != nil {
		if err := s.rig.SetLaserPower(slot, *req.Watts); err != nil {
			writeRigError(w, err)
			return
		}
	}
	if req.On != nil {
		if err := s.rig.SetLaserOn(slot, *req.On); err != nil {
			writeRigError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnap(w http.ResponseWriter, _ *http.Request) {
	img, err := s.rig.SnapImage()
	if err != nil {
		writeRigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SnapResponse{
		Width:      img.Width,
		Height:     img.Height,
		Tags:       img.Tags,
		MeanSnapMS: durationMS(s.rig.MeanSnapTime()),
	})
}

// slotParam parses the {slot} URL parameter, writing a 400 when invalid.
func slotParam(w http.ResponseWriter, r *http.Request) (device.Slot, bool) {
	slot, err := device.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return "", false
	}
	return slot, true
}

// finite returns nil for NaN readings so they encode as null.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
