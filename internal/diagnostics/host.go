package diagnostics

import (
	"context"
	"runtime"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/fretcoach/chordverify/internal/logging"
)

// HostReport is a one-time snapshot of the machine chordverify is running
// on, logged once by the CLI at startup so a slow device or thermal-throttled CPU
// shows up next to any inference-latency complaint.
type HostReport struct {
	GOOS         string
	GOARCH       string
	NumCPU       int
	CPUBrand     string
	HasAVX2      bool
	HasNEON      bool
	TotalMemMB   uint64
	CPUModelName string
}

// CollectHostReport gathers a HostReport using gopsutil for OS-level stats
// and cpuid for SIMD feature flags. Individual lookups that fail (e.g. in a
// container without /proc/cpuinfo) are left at their zero value rather than
// aborting the whole report.
func CollectHostReport(ctx context.Context) HostReport {
	report := HostReport{
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		NumCPU:   runtime.NumCPU(),
		CPUBrand: cpuid.CPU.BrandName,
		HasAVX2:  cpuid.CPU.Supports(cpuid.AVX2),
		HasNEON:  cpuid.CPU.Supports(cpuid.ASIMD),
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		report.TotalMemMB = vm.Total / (1024 * 1024)
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		report.CPUModelName = infos[0].ModelName
	}

	return report
}

// Log emits the report through the shared logging package at Info level.
func (r HostReport) Log() {
	logging.Info("host diagnostics",
		"os", r.GOOS,
		"arch", r.GOARCH,
		"cpus", r.NumCPU,
		"cpu_brand", r.CPUBrand,
		"cpu_model", r.CPUModelName,
		"avx2", r.HasAVX2,
		"neon", r.HasNEON,
		"mem_mb", r.TotalMemMB,
	)
}
