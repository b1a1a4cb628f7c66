package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemStatus is the response of GET /system.
type SystemStatus struct {
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Runtime   RuntimeStatus   `json:"runtime"`
	MQTT      MQTTStatus      `json:"mqtt"`
	Valves    ValveSummary    `json:"valves"`
	Queue     QueueSummary    `json:"queue"`
	Database  *DatabaseStatus `json:"database,omitempty"`
}

type MQTTStatus struct {
	Connected bool `json:"connected"`
}

type RuntimeStatus struct {
	Goroutines int     `json:"goroutines"`
	HeapMB     float64 `json:"heap_mb"`
	NumGC      uint32  `json:"num_gc"`
}

// ValveSummary counts controllers by regime. HeatingUntilTarget counts
// valves latched fully open until the target is reached.
type ValveSummary struct {
	Total              int            `json:"total"`
	ByRegime           map[string]int `json:"by_regime"`
	HeatingUntilTarget int            `json:"heating_until_target"`
}

// QueueSummary describes the actuation queue. LastDispatch is the queue's
// construction time until the first dispatch.
type QueueSummary struct {
	Depth        int       `json:"depth"`
	InFlight     bool      `json:"in_flight"`
	LastDispatch time.Time `json:"last_dispatch"`
}

type DatabaseStatus struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	WaitCount       int64 `json:"wait_count"`
}

func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := SystemStatus{
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Runtime: RuntimeStatus{
			Goroutines: runtime.NumGoroutine(),
			HeapMB:     float64(mem.HeapAlloc) / (1 << 20),
			NumGC:      mem.NumGC,
		},
		Valves: ValveSummary{Total: s.valves.Len(), ByRegime: map[string]int{}},
		Queue: QueueSummary{
			Depth:        s.queue.Len(),
			InFlight:     s.queue.InFlight(),
			LastDispatch: s.queue.LastDispatch(),
		},
	}
	if s.mqtt != nil {
		st.MQTT.Connected = s.mqtt.IsConnected()
	}
	for _, d := range s.valves.AllDiagnostics() {
		st.Valves.ByRegime[d.Regime]++
		if d.HeatingUntilTarget {
			st.Valves.HeatingUntilTarget++
		}
	}
	if s.db != nil {
		stats := s.db.Stats()
		st.Database = &DatabaseStatus{
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			WaitCount:       stats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, st)
}
