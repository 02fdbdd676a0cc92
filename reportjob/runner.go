package reportjob

import (
	"context"
	"errors"
	"fmt"

	"github.com/mengeric/reportfetch-go/logging"
	"github.com/mengeric/reportfetch-go/tracker"
)

// Progress 任务进度回调。
// 参数：message 追加到任务日志的一条消息；pct 为 nil 时保留已存进度。
type Progress func(message string, pct *int)

// Work 一个后台执行单元。
// 约定：耗时操作应尊重 ctx；正常返回的 result 会原样写入任务记录。
type Work func(ctx context.Context, report Progress) (result any, err error)

// 提交阶段错误。
var (
	// ErrQueueFull 待执行队列已满。
	ErrQueueFull = errors.New("runner queue full")
	// ErrJobRunning 同ID任务尚在执行中。
	ErrJobRunning = errors.New("job already running")
	// ErrNotStarted Runner 尚未 Start。
	ErrNotStarted = errors.New("runner not started")
)

type task struct {
	id   string
	work Work
	ins  *tracker.Instance
}

// Runner 后台任务执行器。
// 功能：固定规模协程池执行 Work，过程中经 Progress 回写 JobStore，
// 并保证任务恰好一次进入终态——Work 返回错误或 panic 均转为 failed，
// 绝不让异常击穿工作协程。
type Runner struct {
	opt      Options
	store    JobStore
	storeFor StoreFactory
	trk      *tracker.Manager
	ch       chan task
	started  bool
}

// NewRunner 创建 Runner。
// 功能：按 With... 可选项组合出可运行的执行器；未注入存储时使用内置内存实现。
func NewRunner(opts ...Option) *Runner {
	cfg := &runnerConfig{}
	for _, fn := range opts {
		fn(cfg)
	}
	cfg.opt.withDefaults()
	r := &Runner{opt: cfg.opt, trk: tracker.NewManager()}
	if cfg.store != nil {
		r.store = cfg.store
	} else {
		r.store = newDefaultJobStore()
	}
	if cfg.storeFor != nil {
		r.storeFor = cfg.storeFor
	} else {
		// 默认：所有任务共用注入的存储，release 为空操作
		r.storeFor = func() (JobStore, func(), error) { return r.store, func() {}, nil }
	}
	r.ch = make(chan task, r.opt.QueueSize)
	return r
}

// Start 启动工作协程池。
// 生命周期：受传入 ctx 控制，ctx.Done 后不再取出新任务。
// 副作用：注册日志钩子，把携带任务ID上下文的告警日志镜像进任务日志轨迹。
func (r *Runner) Start(ctx context.Context) {
	if r.started {
		return
	}
	r.started = true
	for i := 0; i < r.opt.PoolSize; i++ {
		go r.worker(ctx)
	}
	logging.SetHook(r.logHook)
}

// Submit 调度一个任务。
// 前置：调用方已通过 JobStore.Create 建好记录（ID 需抗碰撞，见 NewJobID）。
// 返回：队列满返回 ErrQueueFull；同ID在跑返回 ErrJobRunning。
func (r *Runner) Submit(jobID string, work Work) error {
	if !r.started {
		return ErrNotStarted
	}
	ins, ok := r.trk.Start(jobID)
	if !ok {
		return ErrJobRunning
	}
	select {
	case r.ch <- task{id: jobID, work: work, ins: ins}:
		return nil
	default:
		r.trk.Stop(jobID)
		return ErrQueueFull
	}
}

// Poll 停更感知的任务读取，见包内 Poll。
func (r *Runner) Poll(ctx context.Context, jobID string) (*JobRecord, error) {
	return Poll(ctx, r.store, jobID, r.opt.StallTTL)
}

// Store 返回 Runner 使用的共享任务存储（轮询侧复用）。
func (r *Runner) Store() JobStore { return r.store }

func (r *Runner) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.ch:
			r.run(t)
		}
	}
}

// run 执行单个任务并保证终态写入。
func (r *Runner) run(t task) {
	defer r.trk.Stop(t.id)

	store, release, err := r.storeFor()
	if err != nil {
		logging.L().Errorf(context.Background(), "acquire job store failed: job=%s err=%v", t.id, err)
		_ = r.store.Update(context.Background(), t.id, JobUpdate{Error: "internal: storage unavailable", Done: true})
		return
	}
	defer release()

	ctx := withJobID(t.ins.Ctx, t.id)
	defer func() {
		if p := recover(); p != nil {
			logging.L().Errorf(context.Background(), "job panicked: job=%s panic=%v", t.id, p)
			_ = store.Update(context.Background(), t.id, JobUpdate{Error: fmt.Sprintf("panic: %v", p), Done: true})
		}
	}()

	report := func(message string, pct *int) {
		if err := store.Update(ctx, t.id, JobUpdate{Pct: pct, Message: message}); err != nil {
			logging.L().Warnf(context.Background(), "progress update failed: job=%s err=%v", t.id, err)
		}
	}

	res, err := t.work(ctx, report)
	if err != nil {
		logging.L().Errorf(context.Background(), "job failed: job=%s err=%v", t.id, err)
		_ = store.Update(context.Background(), t.id, JobUpdate{Error: err.Error(), Done: true})
		return
	}
	_ = store.Update(ctx, t.id, JobUpdate{Pct: IntPtr(100), Result: res, Done: true})
}

// ---- 日志镜像 Hook 与任务上下文工具 ----

// ctxKey 用于在 Context 中存放任务ID，避免与外部键冲突。
type ctxKey string

var ctxKeyJobID ctxKey = "reportfetch_job_id"

// withJobID 将任务ID写入 Context。
func withJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyJobID, id)
}

// JobIDFromContext 尝试从上下文中提取任务ID。
func JobIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxKeyJobID)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// logHook 把任务上下文内的告警及以上日志镜像到该任务的持久化日志。
// 注意：Hook 不得再次调用 logging.L()，以避免递归。
func (r *Runner) logHook(ctx context.Context, level int, msg string) {
	if level < logging.LevelWarn {
		return
	}
	id, ok := JobIDFromContext(ctx)
	if !ok || id == "" {
		return
	}
	_ = r.store.Update(context.Background(), id, JobUpdate{Message: msg})
}
