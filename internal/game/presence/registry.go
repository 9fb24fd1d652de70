package presence

import (
	"sort"
	"sync"
)

// Status 座位连接状态
type Status string

const (
	Connected   Status = "connected"
	GracePeriod Status = "grace_period"
	Replaced    Status = "replaced"
)

// Registry 连接登记表：记录本局每个参与者当前是已连接、宽限期还是已被接管。
// 只保存参与者 ID，不持有参与者记录本身。
type Registry struct {
	mu     sync.RWMutex
	status map[string]Status
}

// NewRegistry 创建登记表
func NewRegistry() *Registry {
	return &Registry{status: make(map[string]Status)}
}

// Add 登记一个已连接的参与者；已存在时不改变状态
func (r *Registry) Add(participantID string) {
	r.AddWithStatus(participantID, Connected)
}

// AddWithStatus 以指定状态登记
func (r *Registry) AddWithStatus(participantID string, s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.status[participantID]; !ok {
		r.status[participantID] = s
	}
}

// Remove 移除参与者
func (r *Registry) Remove(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.status, participantID)
}

// Status 查询状态
func (r *Registry) Status(participantID string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.status[participantID]
	return s, ok
}

// Transition 仅当当前状态为 from 时切换到 to
func (r *Registry) Transition(participantID string, from, to Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.status[participantID]; !ok || cur != from {
		return false
	}
	r.status[participantID] = to
	return true
}

// Count 统计某状态的人数
func (r *Registry) Count(s Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, st := range r.status {
		if st == s {
			n++
		}
	}
	return n
}

// WithStatus 返回某状态的参与者 ID（有序）
func (r *Registry) WithStatus(s Status) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, st := range r.status {
		if st == s {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot 返回状态副本
func (r *Registry) Snapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Status, len(r.status))
	for id, st := range r.status {
		out[id] = st
	}
	return out
}
