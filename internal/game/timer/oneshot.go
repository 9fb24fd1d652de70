package timer

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// OneShot 状态
const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// OneShot 单次触发的定时器。
// fire 与 cancel 通过同一个 CAS 竞争，先到者胜出，另一方退化为空操作。
type OneShot struct {
	state    atomic.Int32
	t        clockwork.Timer
	stop     chan struct{}
	deadline time.Time
}

// NewOneShot 在 d 之后调用 fn，且至多调用一次
func NewOneShot(clock clockwork.Clock, d time.Duration, fn func()) *OneShot {
	o := &OneShot{
		t:        clock.NewTimer(d),
		stop:     make(chan struct{}),
		deadline: clock.Now().Add(d),
	}

	go func() {
		select {
		case <-o.t.Chan():
			if o.state.CompareAndSwap(statePending, stateFired) {
				fn()
			}
		case <-o.stop:
			stopAndDrainTimer(o.t)
		}
	}()

	return o
}

// Cancel 取消定时器。已触发或已取消时返回 false
func (o *OneShot) Cancel() bool {
	if !o.state.CompareAndSwap(statePending, stateCancelled) {
		return false
	}
	close(o.stop)
	return true
}

// Fired 是否已触发
func (o *OneShot) Fired() bool {
	return o.state.Load() == stateFired
}

// Pending 是否仍在等待
func (o *OneShot) Pending() bool {
	return o.state.Load() == statePending
}

// Deadline 返回到期时间
func (o *OneShot) Deadline() time.Time {
	return o.deadline
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent goroutine leaks.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
