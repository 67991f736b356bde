// internal/pkg/lock/zookeeper.go
package lock

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot = "/distributed_locks" // 所有租约节点的根节点
	// zk 顺序节点的后缀固定为 10 位数字
	sequenceDigits = 10
)

// zkConn 是 *zk.Conn 中租约用到的方法
type zkConn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
	Close()
}

// ZookeeperLocker 使用临时顺序节点实现租约。
// 节点随会话消失，进程崩溃后租约自动释放。
type ZookeeperLocker struct {
	conn     zkConn
	path     string // 租约路径，例如 /distributed_locks/fulfillment-worker
	lockNode string // 成功获取租约后，自己创建的节点路径
}

// DialZookeeper 连接 zk 集群并创建租约
func DialZookeeper(servers []string, resource string, sessionTimeout time.Duration) (*ZookeeperLocker, error) {
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	l, err := NewZookeeperLocker(conn, resource)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

// NewZookeeperLocker 确保租约路径存在
func NewZookeeperLocker(conn zkConn, resource string) (*ZookeeperLocker, error) {
	lockPath := lockRoot + "/" + strings.ReplaceAll(resource, "/", "_")
	for _, p := range []string{lockRoot, lockPath} {
		exists, _, err := conn.Exists(p)
		if err != nil {
			return nil, errors.Wrapf(err, "check lock node %s", p)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, errors.Wrapf(err, "create lock node %s", p)
		}
	}
	return &ZookeeperLocker{conn: conn, path: lockPath}, nil
}

// TryLock 创建顺序节点，序号最小者获得租约；否则删除自己的节点并返回 false
func (l *ZookeeperLocker) TryLock(_ context.Context) (bool, error) {
	if l.lockNode != "" {
		return true, nil
	}
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(ownerID()), zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, errors.Wrap(err, "create sequential node")
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		l.deleteNode(nodePath)
		return false, errors.Wrap(err, "list lock children")
	}
	if len(children) == 0 {
		l.deleteNode(nodePath)
		return false, errors.New("lock node vanished after creation")
	}
	sortBySequence(children)

	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")
	if children[0] != myNodeName {
		l.deleteNode(nodePath)
		return false, nil
	}
	l.lockNode = nodePath
	return true, nil
}

func (l *ZookeeperLocker) Unlock(_ context.Context) error {
	if l.lockNode == "" {
		return nil
	}
	if err := l.conn.Delete(l.lockNode, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

func (l *ZookeeperLocker) Close() error {
	l.conn.Close()
	return nil
}

func (l *ZookeeperLocker) deleteNode(nodePath string) {
	_ = l.conn.Delete(nodePath, -1)
}

// sortBySequence 按顺序节点的数字后缀排序。
// protected 节点名带有随机 GUID 前缀，不能直接按字符串排序。
func sortBySequence(children []string) {
	sort.SliceStable(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(node string) int64 {
	if len(node) < sequenceDigits {
		return -1
	}
	n, err := strconv.ParseInt(node[len(node)-sequenceDigits:], 10, 64)
	if err != nil {
		return -1
	}
	return n
}
