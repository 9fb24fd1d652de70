package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TimerState 某局当前阶段的权威截止时间。
// 每局同一时刻只有一个 TimerState，其他组件只读。
type TimerState struct {
	SessionID  string
	Phase      string
	Deadline   time.Time
	Generation uint64
}

// ExpiryFunc 到期回调
type ExpiryFunc func(TimerState)

type armed struct {
	state TimerState
	shot  *OneShot
}

// ServerTimer 服务器权威计时器，唯一有权宣布"时间到"的组件
type ServerTimer struct {
	clock clockwork.Clock

	mu        sync.Mutex
	active    map[string]*armed
	callbacks map[string]ExpiryFunc
	gen       uint64
}

// NewServerTimer 创建计时器
func NewServerTimer(clock clockwork.Clock) *ServerTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ServerTimer{
		clock:     clock,
		active:    make(map[string]*armed),
		callbacks: make(map[string]ExpiryFunc),
	}
}

// OnExpire 注册某局的到期回调
func (t *ServerTimer) OnExpire(sessionID string, fn ExpiryFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[sessionID] = fn
}

// ArmDeadline 设置 deadline = now + d，替换该局之前的截止时间
func (t *ServerTimer) ArmDeadline(sessionID, phase string, d time.Duration) TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.active[sessionID]; ok {
		prev.shot.Cancel()
	}

	t.gen++
	a := &armed{state: TimerState{
		SessionID:  sessionID,
		Phase:      phase,
		Deadline:   t.clock.Now().Add(d),
		Generation: t.gen,
	}}
	a.shot = NewOneShot(t.clock, d, func() { t.fire(a) })
	t.active[sessionID] = a

	log.Debug().
		Str("session_id", sessionID).
		Str("phase", phase).
		Time("deadline", a.state.Deadline).
		Uint64("generation", a.state.Generation).
		Msg("armed phase deadline")

	return a.state
}

// fire 只有仍是当前截止时间时才回调
func (t *ServerTimer) fire(a *armed) {
	t.mu.Lock()
	cur, ok := t.active[a.state.SessionID]
	if !ok || cur != a {
		t.mu.Unlock()
		return
	}
	delete(t.active, a.state.SessionID)
	cb := t.callbacks[a.state.SessionID]
	t.mu.Unlock()

	if cb != nil {
		cb(a.state)
	}
}

// Cancel 取消该局待触发的截止时间；已触发或不存在时为空操作
func (t *ServerTimer) Cancel(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.active[sessionID]
	if !ok {
		return false
	}
	delete(t.active, sessionID)
	return a.shot.Cancel()
}

// State 返回该局当前的 TimerState
func (t *ServerTimer) State(sessionID string) (TimerState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.active[sessionID]
	if !ok {
		return TimerState{}, false
	}
	return a.state, true
}

// Remaining 返回剩余时间，没有截止时间时为 0
func (t *ServerTimer) Remaining(sessionID string) time.Duration {
	st, ok := t.State(sessionID)
	if !ok {
		return 0
	}
	if left := st.Deadline.Sub(t.clock.Now()); left > 0 {
		return left
	}
	return 0
}

// Forget 取消并移除该局的所有计时状态
func (t *ServerTimer) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.active[sessionID]; ok {
		a.shot.Cancel()
		delete(t.active, sessionID)
	}
	delete(t.callbacks, sessionID)
}

// Now 返回服务器时间
func (t *ServerTimer) Now() time.Time {
	return t.clock.Now()
}
