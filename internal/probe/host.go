package probe

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"go.sazak.io/monoclock/internal/log"
)

// Host describes the machine a report was taken on. Timer behaviour depends
// heavily on it: virtualised TSCs, CPU frequency scaling and the kernel's
// clocksource all show up in the resolution check.
type Host struct {
	Hostname        string `json:"hostname" yaml:"hostname"`
	OS              string `json:"os" yaml:"os"`
	Arch            string `json:"arch" yaml:"arch"`
	Platform        string `json:"platform,omitempty" yaml:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty" yaml:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty"`
	Virtualization  string `json:"virtualization,omitempty" yaml:"virtualization,omitempty"`
	CPUModel        string `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	LogicalCPUs     int    `json:"logical_cpus" yaml:"logical_cpus"`
}

// HostInfo collects what it can; missing facts are left empty.
func HostInfo(ctx context.Context) Host {
	h := Host{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
	}
	logger := log.Logger().Named("probe")

	if info, err := host.InfoWithContext(ctx); err == nil {
		h.Hostname = info.Hostname
		h.Platform = info.Platform
		h.PlatformVersion = info.PlatformVersion
		h.KernelVersion = info.KernelVersion
		h.Virtualization = info.VirtualizationSystem
	} else {
		logger.Debug("Failed to read host info", zap.Error(err))
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		h.CPUModel = cpus[0].ModelName
	} else if err != nil {
		logger.Debug("Failed to read CPU info", zap.Error(err))
	}

	return h
}
