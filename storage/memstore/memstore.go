package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/mengeric/reportfetch-go/reportjob"
)

// Store 线程安全的内存存储，仅用于开发/测试。
// 说明：CacheStore 与 JobStore 的 Get 签名不同，无法挂在同一类型上，
// 故通过 Cache()/Jobs() 两个视图分别暴露。
type Store struct {
	mu    sync.RWMutex
	cache map[string]*reportjob.CacheEntry
	jobs  map[string]*reportjob.JobRecord
}

// New 创建内存存储。
func New() *Store {
	return &Store{cache: map[string]*reportjob.CacheEntry{}, jobs: map[string]*reportjob.JobRecord{}}
}

// Cache 返回缓存视图。
func (s *Store) Cache() *CacheStore { return &CacheStore{s: s} }

// Jobs 返回任务视图。
func (s *Store) Jobs() *JobStore { return &JobStore{s: s} }

// SeedCache 以指定时间戳写入条目，供测试构造陈旧缓存。
func (s *Store) SeedCache(entry reportjob.CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := entry
	cp.Meta = copyMeta(entry.Meta)
	s.cache[entry.Key] = &cp
}

// SeedJob 以指定字段写入任务记录，供测试构造失联任务等场景。
func (s *Store) SeedJob(rec reportjob.JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	cp.Log = append([]string(nil), rec.Log...)
	s.jobs[rec.ID] = &cp
}

// ---- CacheStore ----

// CacheStore Store 的缓存视图。
type CacheStore struct{ s *Store }

var _ reportjob.CacheStore = (*CacheStore)(nil)

func (c *CacheStore) EnsureReady(ctx context.Context) error { return nil }

func (c *CacheStore) Get(ctx context.Context, key string) (*reportjob.CacheEntry, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	e, ok := c.s.cache[key]
	if !ok {
		return nil, reportjob.ErrCacheMiss
	}
	cp := *e
	cp.Meta = copyMeta(e.Meta)
	return &cp, nil
}

func (c *CacheStore) Set(ctx context.Context, key string, payload any, meta map[string]string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.cache[key] = &reportjob.CacheEntry{
		Key:          key,
		Payload:      payload,
		UpdatedAtUTC: time.Now().UTC(),
		Meta:         copyMeta(meta),
	}
	return nil
}

// ---- JobStore ----

// JobStore Store 的任务视图。
type JobStore struct{ s *Store }

var _ reportjob.JobStore = (*JobStore)(nil)

func (j *JobStore) EnsureReady(ctx context.Context) error { return nil }

func (j *JobStore) Create(ctx context.Context, jobID string) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	if _, ok := j.s.jobs[jobID]; ok {
		return reportjob.ErrJobExists
	}
	now := time.Now()
	j.s.jobs[jobID] = &reportjob.JobRecord{ID: jobID, Status: reportjob.StatusRunning, Log: []string{}, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (j *JobStore) Update(ctx context.Context, jobID string, upd reportjob.JobUpdate) error {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()
	r, ok := j.s.jobs[jobID]
	if !ok {
		return reportjob.ErrJobNotFound
	}
	if upd.Message != "" {
		r.Log = append(r.Log, upd.Message)
	}
	if upd.Pct != nil {
		r.Pct = *upd.Pct
	}
	if upd.Result != nil {
		r.Result = upd.Result
	}
	r.Error = upd.Error
	r.Status = reportjob.StatusFor(upd.Error, upd.Done)
	r.UpdatedAt = time.Now()
	return nil
}

func (j *JobStore) Get(ctx context.Context, jobID string) (*reportjob.JobRecord, error) {
	j.s.mu.RLock()
	defer j.s.mu.RUnlock()
	r, ok := j.s.jobs[jobID]
	if !ok {
		return nil, reportjob.ErrJobNotFound
	}
	cp := *r
	cp.Log = append([]string(nil), r.Log...)
	return &cp, nil
}

func copyMeta(m map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		out[k] = v
	}
	return out
}
