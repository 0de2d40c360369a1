package sysinfo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// DiskUsage is one mount's usage. Err is kept so a failed mount shows up
// in the report instead of vanishing.
type DiskUsage struct {
	Mount   string
	Total   uint64
	Used    uint64
	Percent float64
	Err     error
}

type Snapshot struct {
	Hostname      string
	OS            string
	Kernel        string
	Uptime        time.Duration
	CPUModel      string
	CPUCores      int
	CPUPercent    float64
	MemoryTotal   uint64
	MemoryUsed    uint64
	MemoryPercent float64
	Disks         []DiskUsage
	GPU           string
	OllamaOnline  bool
	Models        []string
	DBConnected   bool
	DBTables      []string
	CapturedAt    time.Time
}

type HealthProber interface {
	Healthy(ctx context.Context) bool
	Tags(ctx context.Context) ([]string, error)
}

type StoreStatus struct {
	Connected bool
	Tables    []string
}

type Reporter struct {
	mounts []string
	probe  HealthProber
	logger *zap.Logger
}

func New(mounts []string, probe HealthProber, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(mounts) == 0 {
		mounts = []string{"/"}
	}
	return &Reporter{mounts: mounts, probe: probe, logger: logger}
}

// Capture gathers the snapshot. Individual probe failures degrade to
// empty fields; Capture itself never fails.
func (r *Reporter) Capture(ctx context.Context, dbStatus StoreStatus) Snapshot {
	snapshot := Snapshot{
		CapturedAt:  time.Now(),
		DBConnected: dbStatus.Connected,
		DBTables:    dbStatus.Tables,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snapshot.Hostname = info.Hostname
		snapshot.OS = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		snapshot.Kernel = info.KernelVersion
		snapshot.Uptime = time.Duration(info.Uptime) * time.Second
	} else {
		r.logger.Warn("could not read host info", zap.Error(err))
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		snapshot.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snapshot.CPUCores = cores
	}
	if percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot.MemoryTotal = vm.Total
		snapshot.MemoryUsed = vm.Used
		snapshot.MemoryPercent = vm.UsedPercent
	} else {
		r.logger.Warn("could not read memory info", zap.Error(err))
	}

	for _, mount := range r.mounts {
		usage, err := disk.UsageWithContext(ctx, mount)
		if err != nil {
			snapshot.Disks = append(snapshot.Disks, DiskUsage{Mount: mount, Err: err})
			continue
		}
		snapshot.Disks = append(snapshot.Disks, DiskUsage{
			Mount:   mount,
			Total:   usage.Total,
			Used:    usage.Used,
			Percent: usage.UsedPercent,
		})
	}

	snapshot.GPU = probeGPU(ctx)

	if r.probe != nil {
		snapshot.OllamaOnline = r.probe.Healthy(ctx)
		if snapshot.OllamaOnline {
			if tags, err := r.probe.Tags(ctx); err == nil {
				snapshot.Models = tags
			}
		}
	}
	return snapshot
}

// probeGPU shells out to nvidia-smi. An absent tool is normal on most
// machines and reports an empty GPU field.
func probeGPU(ctx context.Context) string {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return ""
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(probeCtx, "nvidia-smi",
		"--query-gpu=name,utilization.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return ""
	}
	fields := strings.Split(strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0]), ",")
	if len(fields) < 4 {
		return strings.TrimSpace(string(out))
	}
	return fmt.Sprintf("%s (%s%% util, %s/%s MiB)",
		strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]),
		strings.TrimSpace(fields[2]), strings.TrimSpace(fields[3]))
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func humanUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
