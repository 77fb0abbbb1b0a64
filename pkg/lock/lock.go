// 文件: pkg/lock/lock.go
// 用户级分布式锁 - Redis 租约实现
//
// 设计说明:
// 1. 锁粒度是"用户"而不是"单行余额": 一把锁保护该用户的现金 + 全部资产行,
//    避免多资产操作之间的锁顺序死锁
// 2. 租约 (TTL) 而不是无限持有: 持有者崩溃后锁自动过期, 不会永久饿死账户
// 3. 获取失败快速返回, 不排队: 调用方拿到可重试错误自行决定

package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockTimeout   = errors.New("lock acquire timeout")
	ErrNotLockHolder = errors.New("not lock holder")
)

// =============================================================================
// 配置
// =============================================================================

// ManagerConfig 锁管理器配置
type ManagerConfig struct {
	// LeaseTTL 租约时长, 持有者超过该时间未释放则自动过期
	LeaseTTL time.Duration

	// PollInterval 获取失败后的轮询间隔
	PollInterval time.Duration
}

// DefaultManagerConfig 默认配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		LeaseTTL:     10 * time.Second,
		PollInterval: 20 * time.Millisecond,
	}
}

// =============================================================================
// Handle - 锁句柄
// =============================================================================

// Handle 锁句柄
// Token 是本次持有的唯一标识, 释放时校验, 防止误删后继持有者的锁
type Handle struct {
	Username string
	Purpose  string // "order" / "deposit" / "withdraw", 仅用于排查
	Token    string
	Deadline time.Time // 本地视角的租约到期时间
}

// Alive 租约是否还有至少 margin 的剩余时间
// 执行器在"不可回退写入"之前调用, 降低租约过期后双持有的窗口
// (注意: 这是本地时钟判断, 不是存储侧的 fencing token)
func (h *Handle) Alive(margin time.Duration) bool {
	return time.Now().Add(margin).Before(h.Deadline)
}

// =============================================================================
// Manager - 锁管理器
// =============================================================================

// Manager 用户级锁管理器
type Manager struct {
	client *redis.Client
	config ManagerConfig
}

// NewManager 创建锁管理器
func NewManager(client *redis.Client, cfg ManagerConfig) *Manager {
	return &Manager{client: client, config: cfg}
}

func lockKey(username string) string {
	return "lock:user:" + username
}

// Acquire 获取用户锁
// 在 wait 时间内以 PollInterval 轮询 SET NX, 超时返回 ErrLockTimeout
func (m *Manager) Acquire(ctx context.Context, username, purpose string, wait time.Duration) (*Handle, error) {
	token := uuid.NewString()
	key := lockKey(username)
	deadline := time.Now().Add(wait)

	for {
		// SET NX PX: 不存在才写入, Redis 端自动处理过期租约
		ok, err := m.client.SetNX(ctx, key, token, m.config.LeaseTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
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

// luaRelease 释放脚本
// KEYS[1]: lockKey
// ARGV[1]: token
// Token 不匹配说明租约已过期且被他人持有, 不能删
const luaRelease = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

// Release 释放锁
// 句柄过期后调用是安全的 no-op (返回 ErrNotLockHolder, 调用方通常只记日志)
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	n, err := m.client.Eval(ctx, luaRelease, []string{lockKey(h.Username)}, h.Token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotLockHolder
	}
	return nil
}

// luaExtend 续约脚本
// KEYS[1]: lockKey
// ARGV[1]: token
// ARGV[2]: ttl 毫秒
const luaExtend = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	return 0
`

// Extend 续约
// 慢路径 (审计写入重试) 可能逼近租约边缘, 续约后更新本地 Deadline
func (m *Manager) Extend(ctx context.Context, h *Handle) error {
	n, err := m.client.Eval(ctx, luaExtend, []string{lockKey(h.Username)}, h.Token, m.config.LeaseTTL.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotLockHolder
	}
	h.Deadline = time.Now().Add(m.config.LeaseTTL)
	return nil
}

// IsHeld 该用户当前是否有锁 (运维排查用)
func (m *Manager) IsHeld(ctx context.Context, username string) (bool, error) {
	n, err := m.client.Exists(ctx, lockKey(username)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
