package clock

import (
	"sync"
	"time"
)

// Estimate 某个连接的时钟估计
type Estimate struct {
	Offset  time.Duration // 服务器时间 - 客户端时间
	RTT     time.Duration
	Samples int
	Updated time.Time // 服务器时间
}

// ClockSync 维护每个连接的时钟偏移和往返时延（EWMA）。
// 估计值只用于换算客户端倒计时，不参与计分。
type ClockSync struct {
	alpha float64

	mu        sync.RWMutex
	estimates map[string]*Estimate
}

// NewClockSync 创建时钟同步器，alpha 为新样本权重 (0,1]
func NewClockSync(alpha float64) *ClockSync {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &ClockSync{
		alpha:     alpha,
		estimates: make(map[string]*Estimate),
	}
}

// Sample 记录一次 ping/pong 采样。
// pingSentAt 与 pongReceivedAt 为客户端时钟，serverTimeAtPong 为服务器回复 pong 时的时间。
func (cs *ClockSync) Sample(connID string, pingSentAt, pongReceivedAt, serverTimeAtPong time.Time) (Estimate, bool) {
	rtt := pongReceivedAt.Sub(pingSentAt)
	if rtt < 0 {
		return Estimate{}, false
	}
	// 假设上下行对称，pong 生成时客户端时钟约为 pingSentAt + rtt/2
	offset := serverTimeAtPong.Sub(pingSentAt.Add(rtt / 2))

	cs.mu.Lock()
	defer cs.mu.Unlock()

	est, ok := cs.estimates[connID]
	if !ok {
		est = &Estimate{Offset: offset, RTT: rtt}
		cs.estimates[connID] = est
	} else {
		est.Offset = ewma(est.Offset, offset, cs.alpha)
		est.RTT = ewma(est.RTT, rtt, cs.alpha)
	}
	est.Samples++
	est.Updated = serverTimeAtPong

	return *est, true
}

// Get 返回连接的当前估计
func (cs *ClockSync) Get(connID string) (Estimate, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	est, ok := cs.estimates[connID]
	if !ok {
		return Estimate{}, false
	}
	return *est, true
}

// EstimatedServerNow 由客户端当前时间推算服务器当前时间
func (cs *ClockSync) EstimatedServerNow(connID string, clientNow time.Time) time.Time {
	est, _ := cs.Get(connID)
	return clientNow.Add(est.Offset)
}

// Countdown 客户端应显示的剩余时间 = deadline - estimatedServerNow，不小于 0
func (cs *ClockSync) Countdown(connID string, deadline, clientNow time.Time) time.Duration {
	left := deadline.Sub(cs.EstimatedServerNow(connID, clientNow))
	if left < 0 {
		return 0
	}
	return left
}

// Forget 连接关闭时移除估计
func (cs *ClockSync) Forget(connID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.estimates, connID)
}

func ewma(prev, sample time.Duration, alpha float64) time.Duration {
	return time.Duration(alpha*float64(sample) + (1-alpha)*float64(prev))
}
