package reportjob

import (
	"context"
	"errors"
)

// 存储层哨兵错误。
var (
	// ErrCacheMiss 指定 key 不存在缓存条目。
	ErrCacheMiss = errors.New("cache miss")
	// ErrJobNotFound 指定任务不存在。
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists Create 时任务ID已存在。
	ErrJobExists = errors.New("job already exists")
)

// CacheStore 键值缓存持久化接口（可由宿主实现或使用内置 gormstore）。
type CacheStore interface {
	// EnsureReady 幂等初始化底层表结构，可并发、可重复调用。
	EnsureReady(ctx context.Context) error
	// Get 按 key 读取条目；不存在返回 ErrCacheMiss，不视为异常。
	Get(ctx context.Context, key string) (*CacheEntry, error)
	// Set 插入或整体覆盖条目（payload 与 meta 均完整替换），并把
	// UpdatedAtUTC 刷新为当前时间；返回成功前必须已落盘。
	Set(ctx context.Context, key string, payload any, meta map[string]string) error
}

// JobUpdate 单次任务更新。
// 语义：Message 非空则向日志追加一条；Pct 为 nil 时保留旧值（绝不归零）；
// Result 为 nil 时保留旧值；状态按 StatusFor(Error, Done) 推导。
type JobUpdate struct {
	Pct     *int
	Message string
	Error   string
	Result  any
	Done    bool
}

// JobStore 任务持久化接口。
// 注意：存储层不拦截终态后的更新，单写者约束由 Runner 保证。
type JobStore interface {
	// EnsureReady 幂等初始化底层表结构。
	EnsureReady(ctx context.Context) error
	// Create 新建任务：status=running、pct=0、log=[]；ID 重复时返回 ErrJobExists。
	Create(ctx context.Context, jobID string) error
	// Update 应用一次更新并刷新 UpdatedAt。
	Update(ctx context.Context, jobID string, upd JobUpdate) error
	// Get 按ID读取任务；不存在返回 ErrJobNotFound。
	Get(ctx context.Context, jobID string) (*JobRecord, error)
}

// IntPtr 返回 int 指针，便于组装 JobUpdate.Pct。
func IntPtr(v int) *int { return &v }
