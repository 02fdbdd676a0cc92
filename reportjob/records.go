package reportjob

import "time"

// 任务状态常量，与持久化表中的 status 字段取值一致。
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// 缓存 meta 中的约定键。
const (
	// MetaLast503AtUTC 最近一次触发回退的失败时间（UTC, RFC3339），用于冷却判定。
	MetaLast503AtUTC = "last_503_at_utc"
	// MetaRefreshedAtSyd 最近一次成功刷新对应的悉尼本地时间，便于界面展示。
	MetaRefreshedAtSyd = "refreshed_at_syd"
)

// CacheEntry 通用键值缓存实体。
// 说明：payload 对存储层完全不透明；条目只升级不过期，新鲜度由取数层自行判断。
type CacheEntry struct {
	Key          string
	Payload      any               // 任意可 JSON 序列化的值
	UpdatedAtUTC time.Time         // 每次成功写入时刷新
	Meta         map[string]string // 自由标注，见 Meta* 常量
}

// JobRecord 后台任务持久化实体。
type JobRecord struct {
	ID        string
	Status    string   // running | completed | failed
	Pct       int      // 0..100，约定单调递增
	Log       []string // 只追加的进度消息
	Error     string   // 仅在 failed 时非空
	Result    any      // 仅在 completed 时非空（也允许为空结果）
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Done 任务是否已达终态。
func (j *JobRecord) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// StatusFor 由一次更新推导任务状态。
// 规则：error 非空即 failed（优先于 done）；否则 done 为 completed；否则维持 running。
func StatusFor(errText string, done bool) string {
	if errText != "" {
		return StatusFailed
	}
	if done {
		return StatusCompleted
	}
	return StatusRunning
}
