package resourcemodel

import (
	"github.com/elastic/go-sysinfo"
	"github.com/jaypipes/ghw"

	"github.com/modelmux/modelmux/pkg/logging"
)

const bytesPerMB = 1024 * 1024

// TotalRAMMB returns the host's total physical RAM in megabytes, the Go
// analogue of lazyllama's get_total_ram_mb (psutil.virtual_memory().total).
// ghw.Memory() is tried first; if it fails (e.g. inside a restricted
// container without /proc/meminfo access), go-sysinfo's host memory
// reading is used as a fallback before giving up and returning 0.
func TotalRAMMB(log logging.Logger) float64 {
	if mem, err := ghw.Memory(); err == nil && mem.TotalPhysicalBytes > 0 {
		return float64(mem.TotalPhysicalBytes) / bytesPerMB
	}

	host, err := sysinfo.Host()
	if err != nil {
		log.WithError(err).Warn("could not determine total RAM")
		return 0
	}
	memInfo, err := host.Memory()
	if err != nil {
		log.WithError(err).Warn("could not determine total RAM")
		return 0
	}
	return float64(memInfo.Total) / bytesPerMB
}

// TotalVRAMMB reports the host's total VRAM in megabytes. It always returns
// 0, logging a warning when GPUs are detected. ghw's GPU enumeration on Linux does not
// expose per-card memory size (no PCI-level VRAM field), so unlike RAM
// there is no second library in this corpus that fills the gap; this
// mirrors lazyllama's own get_total_vram_mb, which returns 0.0 whenever
// pynvml fails to initialize (e.g. no NVIDIA driver present).
func TotalVRAMMB(log logging.Logger) float64 {
	gpuInfo, err := ghw.GPU()
	if err != nil || len(gpuInfo.GraphicsCards) == 0 {
		log.Debug("no GPU detected; treating total VRAM as 0")
		return 0
	}
	log.WithField("gpu_count", len(gpuInfo.GraphicsCards)).
		Warn("GPU(s) detected but this host has no VRAM-size telemetry source wired; treating total VRAM as 0")
	return 0
}
