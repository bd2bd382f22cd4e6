package session

import (
	"sync"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/ikeparams/pkg/logger"
	"go.uber.org/zap"
)

// IkeSessionCallback 调用方接收 IKE 会话事件
// OnClosed 与 OnClosedWithError 在会话生命周期内恰好触发其中一个
type IkeSessionCallback interface {
	OnOpened(cfg *IkeSessionConfiguration)
	OnClosed()
	OnClosedWithError(err error)
	// OnError 可恢复的错误，会话仍然存活 (例如 Child SA 的 Rekey 失败)
	OnError(err error)
}

// ChildSessionCallback 调用方接收 Child 会话事件
type ChildSessionCallback interface {
	OnOpened(cfg *ChildSessionConfiguration)
	OnClosed()
	OnClosedWithError(err error)
}

// Executor 回调的派发方式，nil 表示在调用者 goroutine 中直接执行
type Executor func(func())

type lifecycleState int

const (
	stateNew lifecycleState = iota
	stateOpened
	stateClosed
)

func (s lifecycleState) String() string {
	switch s {
	case stateOpened:
		return "opened"
	case stateClosed:
		return "closed"
	default:
		return "new"
	}
}

// lifecycle 两种会话共用的状态机
type lifecycle struct {
	mu       sync.Mutex
	state    lifecycleState
	executor Executor
	log      *zap.Logger
}

func (l *lifecycle) dispatch(fn func()) {
	if l.executor == nil {
		fn()
		return
	}
	l.executor(fn)
}

// transition 调用方持有 mu
func (l *lifecycle) transition(event string, allowed func(lifecycleState) bool, next lifecycleState) bool {
	if !allowed(l.state) {
		l.log.Debug("忽略事件", zap.String("event", event), zap.Stringer("state", l.state))
		return false
	}
	l.log.Debug("状态变化", zap.String("event", event), zap.Stringer("from", l.state), zap.Stringer("to", next))
	l.state = next
	return true
}

func isNew(s lifecycleState) bool       { return s == stateNew }
func isNotClosed(s lifecycleState) bool { return s != stateClosed }
func isOpened(s lifecycleState) bool    { return s == stateOpened }

// IkeLifecycle 保证回调契约：OnOpened 最多一次，终止回调恰好一次，之后的事件被忽略
type IkeLifecycle struct {
	lifecycle
	cb       IkeSessionCallback
	children []*ChildLifecycle
}

func NewIkeLifecycle(cb IkeSessionCallback, executor Executor) *IkeLifecycle {
	return &IkeLifecycle{
		lifecycle: lifecycle{executor: executor, log: logger.Named("ike-session")},
		cb:        cb,
	}
}

// AddChild IKE 会话关闭时会先关闭其下仍存活的 Child 会话
// IKE 会话已关闭时 Child 会话立即以 ErrSessionClosed 关闭
func (l *IkeLifecycle) AddChild(c *ChildLifecycle) {
	l.mu.Lock()
	if l.state == stateClosed {
		l.mu.Unlock()
		c.ClosedWithError(ErrSessionClosed)
		return
	}
	l.children = append(l.children, c)
	l.mu.Unlock()
}

func (l *IkeLifecycle) Opened(cfg *IkeSessionConfiguration) bool {
	l.mu.Lock()
	ok := l.transition("opened", isNew, stateOpened)
	l.mu.Unlock()
	if ok {
		l.dispatch(func() { l.cb.OnOpened(cfg) })
	}
	return ok
}

// Error 可恢复错误，会话关闭后不再上报
func (l *IkeLifecycle) Error(err error) bool {
	l.mu.Lock()
	ok := l.state != stateClosed
	l.mu.Unlock()
	if !ok {
		l.log.Debug("会话已关闭，忽略错误", zap.Error(err))
		return false
	}
	l.log.Warn("会话出现可恢复错误", zap.Error(err))
	l.dispatch(func() { l.cb.OnError(err) })
	return true
}

func (l *IkeLifecycle) Closed() bool {
	return l.close(nil)
}

func (l *IkeLifecycle) ClosedWithError(err error) bool {
	if err == nil {
		err = ErrSessionClosed
	}
	return l.close(err)
}

func (l *IkeLifecycle) close(err error) bool {
	l.mu.Lock()
	ok := l.transition("closed", isNotClosed, stateClosed)
	children := l.children
	l.children = nil
	l.mu.Unlock()
	if !ok {
		return false
	}

	for _, c := range children {
		if err != nil {
			c.ClosedWithError(err)
		} else {
			c.Closed()
		}
	}
	if err != nil {
		l.log.Error("IKE 会话异常关闭", zap.Error(err))
		l.dispatch(func() { l.cb.OnClosedWithError(err) })
	} else {
		l.dispatch(l.cb.OnClosed)
	}
	return true
}

func (l *IkeLifecycle) IsClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == stateClosed
}

// ChildLifecycle Child 会话的回调契约
type ChildLifecycle struct {
	lifecycle
	cb ChildSessionCallback
}

func NewChildLifecycle(cb ChildSessionCallback, executor Executor) *ChildLifecycle {
	return &ChildLifecycle{
		lifecycle: lifecycle{executor: executor, log: logger.Named("child-session")},
		cb:        cb,
	}
}

func (l *ChildLifecycle) Opened(cfg *ChildSessionConfiguration) bool {
	l.mu.Lock()
	ok := l.transition("opened", isNew, stateOpened)
	l.mu.Unlock()
	if ok {
		l.dispatch(func() { l.cb.OnOpened(cfg) })
	}
	return ok
}

func (l *ChildLifecycle) Closed() bool {
	l.mu.Lock()
	ok := l.transition("closed", isNotClosed, stateClosed)
	l.mu.Unlock()
	if ok {
		l.dispatch(l.cb.OnClosed)
	}
	return ok
}

func (l *ChildLifecycle) ClosedWithError(err error) bool {
	if err == nil {
		err = ErrSessionClosed
	}
	l.mu.Lock()
	ok := l.transition("closed", isNotClosed, stateClosed)
	l.mu.Unlock()
	if ok {
		l.log.Error("Child 会话异常关闭", zap.Error(err))
		l.dispatch(func() { l.cb.OnClosedWithError(err) })
	}
	return ok
}

func (l *ChildLifecycle) IsOpened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return isOpened(l.state)
}

// NegotiateChildSa 校验对端为 Child SA 选中的提议
// 第一个 Child SA 与去掉 DH 的提议比较；Rekey 时不比较 DH 组，PFS 可以变化
func NegotiateChildSa(params *ChildSessionParams, selected *ikev2.SaProposal, isRekey bool) (int, error) {
	var (
		idx int
		err error
	)
	if isRekey {
		idx, err = ikev2.NegotiateExceptDhGroup(params.proposals, selected)
	} else {
		idx, err = ikev2.Negotiate(params.FirstChildProposals(), selected)
	}
	if err != nil {
		logger.Warn("Child SA 协商失败",
			logger.String("mode", params.mode.String()),
			logger.Bool("rekey", isRekey),
			logger.Err(err))
		return -1, err
	}
	return idx, nil
}
