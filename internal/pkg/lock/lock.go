// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Locker 是单实例租约。worker 假设同一时刻只有一个实例在运行，
// 租约只用来守住这个假设：拿不到租约的实例跳过本次轮询。
type Locker interface {
	// TryLock 非阻塞地尝试获取租约
	TryLock(ctx context.Context) (bool, error)
	// Unlock 释放自己持有的租约；未持有时不报错
	Unlock(ctx context.Context) error
	Close() error
}

// Noop 总是成功，用于未配置租约后端的单机部署
type Noop struct{}

func (Noop) TryLock(context.Context) (bool, error) { return true, nil }
func (Noop) Unlock(context.Context) error          { return nil }
func (Noop) Close() error                          { return nil }

// ownerID 生成形如 host-1a2b3c4d 的持有者标识，方便排查是哪台机器占着租约
func ownerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}
