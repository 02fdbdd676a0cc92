package metrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthSnapshot 运维健康面：系统/进程指标加本地数据库连通性。
// 用途：宿主的健康端点直接序列化本结构展示。
type HealthSnapshot struct {
	CPULoad        float64 `json:"cpuLoad"`
	CPUProcessors  int     `json:"cpuProcessors"`
	DiskTotalGB    float64 `json:"diskTotal"`
	DiskUsageRatio float64 `json:"diskUsage"`
	DiskUsedGB     float64 `json:"diskUsed"`
	ProcMaxMemory  float64 `json:"procMaxMemory"`
	ProcMemUsage   float64 `json:"procMemoryUsage"`
	ProcUsedMemory float64 `json:"procUsedMemory"`
	Score          float64 `json:"score"`
	DBOK           bool    `json:"dbOk"`
	CollectedAt    string  `json:"collectedAt"`
}

// CollectHealth 采集系统/进程指标并探测数据库连通性。
// 参数：ping 为数据库探活回调，nil 表示跳过（DBOK 置 true）。
// 说明：单项指标采集失败不致命，对应字段保持零值。
func CollectHealth(ctx context.Context, ping func(context.Context) error) HealthSnapshot {
	var out HealthSnapshot
	if avg, err := load.AvgWithContext(ctx); err == nil {
		out.CPULoad = avg.Load1
	}
	out.CPUProcessors = runtime.NumCPU()
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil && du.Total > 0 {
		out.DiskTotalGB = float64(du.Total) / (1024 * 1024 * 1024)
		out.DiskUsedGB = float64(du.Used) / (1024 * 1024 * 1024)
		out.DiskUsageRatio = du.UsedPercent / 100.0
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm.Total > 0 {
		out.ProcMaxMemory = float64(vm.Total) / (1024 * 1024 * 1024)
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pm, err := p.MemoryInfoWithContext(ctx); err == nil && pm != nil {
			usedGB := float64(pm.RSS) / (1024 * 1024 * 1024)
			out.ProcUsedMemory = usedGB
			if out.ProcMaxMemory > 0 {
				out.ProcMemUsage = usedGB / out.ProcMaxMemory
			}
		}
	}
	score := 100.0
	if out.CPULoad > 0 {
		score -= out.CPULoad * 5
	}
	if out.DiskUsageRatio > 0 {
		score -= out.DiskUsageRatio * 20
	}
	if out.ProcMemUsage > 0 {
		score -= out.ProcMemUsage * 30
	}
	if score < 0 {
		score = 0
	}
	out.Score = score

	out.DBOK = true
	if ping != nil {
		out.DBOK = ping(ctx) == nil
	}
	out.CollectedAt = time.Now().UTC().Format(time.RFC3339)
	return out
}
