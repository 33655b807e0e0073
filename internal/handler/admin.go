package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"iap-coordinator/internal/iap"
	"iap-coordinator/pkg/response"
)

// StatsProvider reports coordinator state.
type StatsProvider interface {
	Stats() iap.Stats
}

// StorageDescriber reports storage backend diagnostics.
type StorageDescriber interface {
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// QueueMetrics reports completion delivery counters.
type QueueMetrics interface {
	Pending() int
	Metrics() (submitted, executed uint64)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	coord       StatsProvider
	storage     StorageDescriber // nil when the backend has no diagnostics
	storageType string           // file, sqlite, postgres, mysql or redis
	queue       QueueMetrics
	startTime   time.Time
}

// NewAdminHandler creates a new admin handler. storage and queue may be nil.
func NewAdminHandler(
	coord StatsProvider,
	storage StorageDescriber,
	storageType string,
	queue QueueMetrics,
) *AdminHandler {
	return &AdminHandler{
		coord:       coord,
		storage:     storage,
		storageType: storageType,
		queue:       queue,
		startTime:   time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["storage_type"] = h.storageType

	stats["coordinator"] = h.coord.Stats()

	// Memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.queue != nil {
		submitted, executed := h.queue.Metrics()
		stats["completions"] = map[string]interface{}{
			"pending":   h.queue.Pending(),
			"submitted": submitted,
			"executed":  executed,
		}
	}

	if h.storage != nil {
		storageStats, err := h.storage.GetStats(ctx)
		if err == nil {
			storageStats["status"] = "connected"
			stats["storage"] = storageStats
		} else {
			stats["storage"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["storage"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	// Runtime info
	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
