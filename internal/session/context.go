// Package session はブラウザセッションごとのSession Contextを提供する。
//
// Session ContextはIdentity Clientの状態通知だけを入力とし、
// 許可リストから管理者フラグを算出して購読者に配信する。
package session

import (
	"context"
	"sync"

	"github.com/hitoshi/portfolio/internal/authz"
	"github.com/hitoshi/portfolio/internal/identity"
	"github.com/hitoshi/portfolio/internal/model"
)

// State はSession Contextの観測可能な状態。
// Loadingは生成から最初の通知までの間だけtrueになる。
type State struct {
	Identity *model.Identity
	Loading  bool
}

// Context はIdentity Clientの通知から導出したセッション状態を保持する。
type Context struct {
	policy *authz.Policy

	// emitMu は状態の更新と購読者への通知を直列化する。
	emitMu sync.Mutex

	mu          sync.Mutex
	state       State
	subscribers map[uint64]func(State)
	nextID      uint64
	ready       chan struct{}
	closed      bool

	unsubscribe func()
}

// New はSession Contextを生成し、observerを購読する。
// 初期状態は{Loading: true, Identity: nil}。
func New(observer identity.StateObserver, policy *authz.Policy) *Context {
	c := &Context{
		policy:      policy,
		state:       State{Loading: true},
		subscribers: make(map[uint64]func(State)),
		ready:       make(chan struct{}),
	}
	c.unsubscribe = observer.ObserveState(c.handle)
	return c
}

// handle はIdentity Clientからの通知を状態に反映する。
// 後の通知が常に前の通知を上書きする。
func (c *Context) handle(u *identity.User) {
	next := State{Identity: c.derive(u), Loading: false}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	wasLoading := c.state.Loading
	c.state = next
	if wasLoading {
		close(c.ready)
	}
	fns := c.subscriberFuncs()
	c.mu.Unlock()

	for _, fn := range fns {
		fn(cloneState(next))
	}
}

// derive はUserからIdentityを導出し、管理者フラグを算出する。
func (c *Context) derive(u *identity.User) *model.Identity {
	if u == nil {
		return nil
	}
	return &model.Identity{
		UID:         u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		IsAdmin:     c.policy.IsAdmin(u.Email),
	}
}

// State は現在の状態を返す。
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneState(c.state)
}

// Subscribe は状態変化の購読者を登録し、購読解除関数を返す。
// fnは登録時に現在の状態で1回、その後は変化のたびに呼び出される。
func (c *Context) Subscribe(fn func(State)) func() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subscribers[id] = fn
	current := cloneState(c.state)
	c.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		})
	}
}

// WaitReady は初期状態が確定するまで待機する。
// ctxが先に終了した場合はその時点の状態とctxのエラーを返す。
func (c *Context) WaitReady(ctx context.Context) (State, error) {
	select {
	case <-c.ready:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Close はIdentity Clientの購読を解除し、以降の通知を無視する。複数回呼び出しても安全。
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.subscribers = make(map[uint64]func(State))
	c.mu.Unlock()

	c.unsubscribe()
}

// subscriberFuncs は登録順の購読者一覧を返す。mu保持中に呼び出す。
func (c *Context) subscriberFuncs() []func(State) {
	fns := make([]func(State), 0, len(c.subscribers))
	for id := uint64(0); id < c.nextID; id++ {
		if fn, ok := c.subscribers[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func cloneState(s State) State {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}
