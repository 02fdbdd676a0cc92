package tracker

import (
	"context"
	"sync"
)

// Instance 维护任务运行中的上下文与取消句柄。
type Instance struct {
	Ctx    context.Context
	Cancel context.CancelFunc
}

// Manager 简单的在跑任务跟踪器。
// 功能：以任务ID为键登记在跑任务，兼做重复提交防护（同一ID在运行期间拒绝再次登记）。
type Manager struct {
	mu      sync.RWMutex
	running map[string]*Instance
}

// NewManager 构造。
func NewManager() *Manager { return &Manager{running: map[string]*Instance{}} }

// Start 登记任务。
// 返回：实例与是否登记成功；若同ID已在运行返回 false。
func (m *Manager) Start(id string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.running[id]; ok {
		return nil, false
	}
	ctx, cancel := context.WithCancel(context.Background())
	ins := &Instance{Ctx: ctx, Cancel: cancel}
	m.running[id] = ins
	return ins, true
}

// Stop 注销任务并取消其上下文。
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ins, ok := m.running[id]; ok {
		ins.Cancel()
		delete(m.running, id)
		return true
	}
	return false
}

// Get 查询任务。
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ins, ok := m.running[id]
	return ins, ok
}

// ListIDs 返回当前在跑任务ID集合。
func (m *Manager) ListIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	return ids
}
