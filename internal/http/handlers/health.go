// Package handlers provides HTTP API handlers for blivec.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthHandler reports process and system telemetry for operators.
type HealthHandler struct {
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// CPUInfo reports host CPU load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// ProcessMemoryInfo reports RSS for the recorder process and its ffmpeg children.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// MemoryInfo reports host and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// HealthResponse is the body of the /health response.
type HealthResponse struct {
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
	Version       string     `json:"version"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	SystemLoad    float64    `json:"system_load"`
	CPUInfo       CPUInfo    `json:"cpu"`
	Memory        MemoryInfo `json:"memory"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	cpuInfo := h.getCPUInfo()
	memInfo := h.getMemoryInfo()

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			SystemLoad:    cpuInfo.LoadPercentage1Min / 100,
			CPUInfo:       cpuInfo,
			Memory:        memInfo,
		},
	}, nil
}

func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	swapStat, err := mem.SwapMemory()
	if err == nil && swapStat != nil {
		info.SwapTotalMB = float64(swapStat.Total) / 1024 / 1024
		info.SwapUsedMB = float64(swapStat.Used) / 1024 / 1024
	}

	info.ProcessMemory = h.getProcessMemoryInfo(info.TotalMemoryMB)

	return info
}

func (h *HealthHandler) getProcessMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
		if totalSystemMB > 0 {
			info.PercentageOfSystem = (info.MainProcessMB / totalSystemMB) * 100
		}
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}

	return info
}
