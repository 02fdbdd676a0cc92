package reportjob

import (
	"context"
	"sync"
	"time"
)

// 包内置的线程安全内存任务存储，仅用于 Runner 默认与测试场景。
// 设计：为了避免 import cycle，不依赖 storage 子包，实现最小接口。

type inMemoryJobStore struct {
	mu sync.RWMutex
	m  map[string]*JobRecord
}

// newDefaultJobStore 创建内置内存任务存储。
func newDefaultJobStore() JobStore { return &inMemoryJobStore{m: map[string]*JobRecord{}} }

func (s *inMemoryJobStore) EnsureReady(ctx context.Context) error { return nil }

func (s *inMemoryJobStore) Create(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[jobID]; ok {
		return ErrJobExists
	}
	now := time.Now()
	s.m[jobID] = &JobRecord{ID: jobID, Status: StatusRunning, Log: []string{}, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *inMemoryJobStore) Update(ctx context.Context, jobID string, upd JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.m[jobID]
	if !ok {
		return ErrJobNotFound
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
	r.Status = StatusFor(upd.Error, upd.Done)
	r.UpdatedAt = time.Now()
	return nil
}

func (s *inMemoryJobStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.m[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *r
	cp.Log = append([]string(nil), r.Log...)
	return &cp, nil
}
