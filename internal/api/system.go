package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system status response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          ServiceStatus   `json:"mqtt"`
	InfluxDB      ServiceStatus   `json:"influxdb"`
	Rig           RigMetrics      `json:"rig"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// ServiceStatus describes an optional backing service.
type ServiceStatus struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

// RigMetrics summarises the composed rig.
type RigMetrics struct {
	BoundSlots int     `json:"bound_slots"`
	Minimal    bool    `json:"minimal_microscope"`
	SPIM       bool    `json:"minimal_spim"`
	SnapCount  int     `json:"snap_count"`
	MeanSnapMS float64 `json:"mean_snap_ms"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystem returns runtime, connectivity and rig statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		MQTT:     serviceStatus(s.mqtt),
		InfluxDB: serviceStatus(s.influx),
		Rig: RigMetrics{
			BoundSlots: len(s.rig.Bound()),
			Minimal:    s.rig.IsMinimalMicroscope(),
			SPIM:       s.rig.IsMinimalSPIM(),
			SnapCount:  s.rig.SnapCount(),
			MeanSnapMS: durationMS(s.rig.MeanSnapTime()),
		},
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

func serviceStatus(c ConnectionStatus) ServiceStatus {
	if c == nil {
		return ServiceStatus{}
	}
	return ServiceStatus{Configured: true, Connected: c.IsConnected()}
}
