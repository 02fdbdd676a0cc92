package reportjob

import "time"

// Options Runner 运行参数。
// 功能：描述协程池规模与停更判定阈值；不含任何 Web 框架配置。
type Options struct {
	PoolSize  int           // 工作协程数，内部低频工具默认 2
	QueueSize int           // 待执行队列容量，满则 Submit 报错
	StallTTL  time.Duration // running 任务停更多久视为失联
}

// withDefaults 填充默认值。
func (o *Options) withDefaults() {
	if o.PoolSize <= 0 {
		o.PoolSize = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = o.PoolSize * 8
	}
	if o.StallTTL <= 0 {
		o.StallTTL = 5 * time.Minute
	}
}

// runnerConfig 聚合可选项。
type runnerConfig struct {
	opt      Options
	store    JobStore
	storeFor StoreFactory
}

// StoreFactory 按任务粒度获取存储。
// 约定：返回的 release 在任务结束（无论成败）后于 defer 中调用，用于归还
// 为该后台任务单独打开的连接等资源。
type StoreFactory func() (store JobStore, release func(), err error)

// Option 可选项函数。
type Option func(*runnerConfig)

// WithPoolSize 设置工作协程数。
func WithPoolSize(n int) Option { return func(c *runnerConfig) { c.opt.PoolSize = n } }

// WithQueueSize 设置队列容量。
func WithQueueSize(n int) Option { return func(c *runnerConfig) { c.opt.QueueSize = n } }

// WithStallTTL 设置停更判定阈值。
func WithStallTTL(d time.Duration) Option { return func(c *runnerConfig) { c.opt.StallTTL = d } }

// WithJobStore 注入任务存储实现。
func WithJobStore(s JobStore) Option { return func(c *runnerConfig) { c.store = s } }

// WithStoreFactory 注入按任务粒度的存储工厂（优先于 WithJobStore 用于任务执行）。
func WithStoreFactory(f StoreFactory) Option { return func(c *runnerConfig) { c.storeFor = f } }
