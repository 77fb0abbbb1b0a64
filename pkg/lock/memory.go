// 文件: pkg/lock/memory.go
// 用户级锁 - 内存实现
//
// 单进程部署 / 本地开发 / 测试用, 语义与 Redis 实现一致:
// 租约过期即视为未持有, 释放校验 Token

package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker 锁接口, Redis 与内存实现共用
type Locker interface {
	Acquire(ctx context.Context, username, purpose string, wait time.Duration) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
	Extend(ctx context.Context, h *Handle) error
}

var (
	_ Locker = (*Manager)(nil)
	_ Locker = (*MemoryManager)(nil)
)

type memoryEntry struct {
	token    string
	deadline time.Time
}

// MemoryManager 内存锁管理器
type MemoryManager struct {
	mu     sync.Mutex
	held   map[string]memoryEntry
	config ManagerConfig
}

// NewMemoryManager 创建内存锁管理器
func NewMemoryManager(cfg ManagerConfig) *MemoryManager {
	return &MemoryManager{
		held:   make(map[string]memoryEntry),
		config: cfg,
	}
}

// tryAcquire 单次尝试, 过期租约直接覆盖
func (m *MemoryManager) tryAcquire(username, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.held[username]; ok && time.Now().Before(e.deadline) {
		return false
	}
	m.held[username] = memoryEntry{token: token, deadline: time.Now().Add(m.config.LeaseTTL)}
	return true
}

// Acquire 获取用户锁
func (m *MemoryManager) Acquire(ctx context.Context, username, purpose string, wait time.Duration) (*Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		if m.tryAcquire(username, token) {
			return &Handle{
				Username: username,
				Purpose:  purpose,
				Token:    token,
				Deadline: time.Now().Add(m.config.LeaseTTL),
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.config.PollInterval):
		}
	}
}

// Release 释放锁
func (m *MemoryManager) Release(_ context.Context, h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.held[h.Username]; !ok || e.token != h.Token {
		return ErrNotLockHolder
	}
	delete(m.held, h.Username)
	return nil
}

// Extend 续约
func (m *MemoryManager) Extend(_ context.Context, h *Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.held[h.Username]
	if !ok || e.token != h.Token || time.Now().After(e.deadline) {
		return ErrNotLockHolder
	}
	e.deadline = time.Now().Add(m.config.LeaseTTL)
	m.held[h.Username] = e
	h.Deadline = e.deadline
	return nil
}
