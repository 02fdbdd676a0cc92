package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mengeric/reportfetch-go/logging"
	"github.com/mengeric/reportfetch-go/reportjob"
)

// 数据来源标记，对外保持稳定，不得更名。
const (
	SourceLive         = "live"
	SourceCache        = "cache"
	SourceCache503     = "cache-503"
	SourceCacheTimeout = "cache-timeout"
	SourceCacheError   = "cache-error"
	SourceCache503Sim  = "cache-503-sim"
)

// FetchFn 真实取数函数。
// 约定：失败时返回的错误可携带 HTTP 状态（HTTPStatus() int）、超时或连接类
// 语义，取数层据此分类；其余错误一律按不可恢复处理原样上抛。
type FetchFn func(ctx context.Context) (any, error)

// Request 一次逻辑取数的全部输入。
type Request struct {
	CacheKey string  // 调用方构造的缓存键，如 open_orders:DD:customer:Acme
	Fetch    FetchFn // 真实取数；本层不做重试，重试属于其下的 HTTP 客户端

	ForceRefresh  bool // true 时跳过"新鲜缓存直接返回"捷径
	MaxAgeMinutes int  // 缓存新鲜期；0 表示不走捷径

	FallbackStatuses     []int // 视为"上游劣化、回退缓存"的状态码集合
	FallbackOnTimeouts   bool
	FallbackOnConnErrors bool

	CooldownMinutes int // 回退后冷却期：期间对同 key 不再发真实请求

	Simulate503 bool // 黑障演练：不发真实请求，按 503 路径处理
}

// Fetch 取数或回退缓存，取数层的核心状态机。
// 返回：(payload, 来源标记, error)。判定顺序固定：初始化存储 → 读缓存条目 →
// 冷却检查（冷却期内无条件吃缓存，ForceRefresh 也不例外）→ 黑障演练 →
// 新鲜缓存捷径 → 真实取数及失败分类。
// 注意：同 key 的并发冷缓存取数不去重，两个调用方会各自打到上游；这是
// 低流量内部工具的有意取舍。
func Fetch(ctx context.Context, store reportjob.CacheStore, req Request) (any, string, error) {
	if err := store.EnsureReady(ctx); err != nil {
		return nil, "", err
	}

	entry, err := store.Get(ctx, req.CacheKey)
	if err != nil {
		if !errors.Is(err, reportjob.ErrCacheMiss) {
			return nil, "", err
		}
		entry = nil
	}
	now := time.Now().UTC()

	// 冷却：近期刚因上游劣化回退过，先别再打它
	if entry != nil && req.CooldownMinutes > 0 {
		if raw := entry.Meta[reportjob.MetaLast503AtUTC]; raw != "" {
			if at, perr := time.Parse(time.RFC3339, raw); perr == nil &&
				now.Sub(at) < time.Duration(req.CooldownMinutes)*time.Minute {
				logging.L().Infof(ctx, "[cache] cooldown active for %s", req.CacheKey)
				return entry.Payload, SourceCache, nil
			}
		}
	}

	// 黑障演练：仍走冷却打点逻辑，无缓存一样报错
	if req.Simulate503 {
		return fallbackDegraded(ctx, store, req, entry, now, SourceCache503Sim, 0)
	}

	// 新鲜缓存捷径
	if !req.ForceRefresh && entry != nil && req.MaxAgeMinutes > 0 {
		if age := now.Sub(entry.UpdatedAtUTC); age <= time.Duration(req.MaxAgeMinutes)*time.Minute {
			logging.L().Infof(ctx, "[cache] fresh hit for %s (age %s)", req.CacheKey, age)
			return entry.Payload, SourceCache, nil
		}
	}

	// 真实取数
	payload, ferr := req.Fetch(ctx)
	if ferr == nil {
		meta := map[string]string{
			reportjob.MetaRefreshedAtSyd: time.Now().In(sydney).Format(time.RFC3339),
		}
		if serr := store.Set(ctx, req.CacheKey, payload, meta); serr != nil {
			return nil, "", serr
		}
		logging.L().Infof(ctx, "[live] refreshed cache for %s", req.CacheKey)
		return payload, SourceLive, nil
	}

	if code, ok := httpStatusOf(ferr); ok {
		if statusIn(code, req.FallbackStatuses) {
			logging.L().Warnf(ctx, "[fallback] HTTP %d for %s; serving cache", code, req.CacheKey)
			return fallbackDegraded(ctx, store, req, entry, now, SourceCache503, code)
		}
		// 不在回退集合内的状态码（如意外 4xx）原样上抛
		return nil, "", ferr
	}

	if isTimeout(ferr) {
		if req.FallbackOnTimeouts && entry != nil {
			logging.L().Warnf(ctx, "[fallback] timeout for %s; serving cache", req.CacheKey)
			return entry.Payload, SourceCacheTimeout, nil
		}
		return nil, "", fmt.Errorf("upstream is not responding for %s: %w", req.CacheKey, ferr)
	}

	if isConnError(ferr) {
		if req.FallbackOnConnErrors && entry != nil {
			logging.L().Warnf(ctx, "[fallback] connection error for %s; serving cache", req.CacheKey)
			return entry.Payload, SourceCacheError, nil
		}
		return nil, "", fmt.Errorf("cannot reach upstream for %s: %w", req.CacheKey, ferr)
	}

	return nil, "", ferr
}

// fallbackDegraded 上游劣化（真实或模拟的 5xx）时的回退路径。
// 功能：有缓存则打点 last_503_at_utc 以启动冷却并返回缓存；无缓存则抛出
// 面向用户的错误，说明发生了什么而非裸异常。
func fallbackDegraded(ctx context.Context, store reportjob.CacheStore, req Request,
	entry *reportjob.CacheEntry, now time.Time, tag string, code int) (any, string, error) {
	if entry == nil {
		if tag == SourceCache503Sim {
			return nil, "", fmt.Errorf("Simulated 503 and no cached data exists for %s", req.CacheKey)
		}
		return nil, "", fmt.Errorf("API returned %d and no cached data exists for %s", code, req.CacheKey)
	}
	meta := map[string]string{}
	for k, v := range entry.Meta {
		meta[k] = v
	}
	meta[reportjob.MetaLast503AtUTC] = now.Format(time.RFC3339)
	if err := store.Set(ctx, req.CacheKey, entry.Payload, meta); err != nil {
		return nil, "", err
	}
	return entry.Payload, tag, nil
}

func statusIn(code int, set []int) bool {
	for _, s := range set {
		if s == code {
			return true
		}
	}
	return false
}
