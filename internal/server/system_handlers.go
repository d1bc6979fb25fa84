package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/finreport/internal/database"
)

// SystemHandlers serves host and database status
type SystemHandlers struct {
	dataDir   string
	databases map[string]*database.DB
	startedAt time.Time
	log       zerolog.Logger
}

// DatabaseStatus is the on-disk size of one database
type DatabaseStatus struct {
	Name   string  `json:"name"`
	SizeMB float64 `json:"size_mb"`
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	GoVersion     string           `json:"go_version"`
	Goroutines    int              `json:"goroutines"`
	CPUPercent    float64          `json:"cpu_percent"`
	MemoryPercent float64          `json:"memory_percent"`
	Databases     []DatabaseStatus `json:"databases"`
}

// DiskUsageResponse is the body of GET /api/system/disk
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	FreeGB      float64 `json:"free_gb"`
	TotalGB     float64 `json:"total_gb"`
	UsedPercent float64 `json:"used_percent"`
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(dataDir string, databases map[string]*database.DB, startedAt time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		dataDir:   dataDir,
		databases: databases,
		startedAt: startedAt,
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// HandleSystemStatus returns process, host and database status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Databases:     make([]DatabaseStatus, 0, len(h.databases)),
	}
	for name, db := range h.databases {
		var size float64
		if info, err := os.Stat(db.Path()); err == nil {
			size = float64(info.Size()) / 1024 / 1024
		}
		response.Databases = append(response.Databases, DatabaseStatus{Name: name, SizeMB: size})
	}
	sort.Slice(response.Databases, func(i, j int) bool {
		return response.Databases[i].Name < response.Databases[j].Name
	})

	h.writeJSON(w, response)
}

// HandleDiskUsage returns data directory size and free space
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	response := DiskUsageResponse{DataDirMB: h.getDirSize(h.dataDir)}
	if usage, err := disk.Usage(h.dataDir); err == nil {
		response.FreeGB = float64(usage.Free) / 1e9
		response.TotalGB = float64(usage.Total) / 1e9
		response.UsedPercent = usage.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to get filesystem usage")
	}

	h.writeJSON(w, response)
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})

	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}

// getSystemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the request fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
