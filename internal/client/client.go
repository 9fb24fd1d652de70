// Package client 问答房间的 WebSocket 客户端：断线重连、事件按序应用与补发、时钟同步
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/palemoky/quiz-rooms/internal/game/clock"
	"github.com/palemoky/quiz-rooms/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBufferSize = 256

	// 心跳间隔
	heartbeatInterval = 5 * time.Second
	// 最大重连次数
	maxReconnectAttempts = 5
	// 首次重连间隔，之后指数退避
	reconnectInterval = 2 * time.Second
	// 重连间隔上限
	maxReconnectBackoff = 30 * time.Second

	serverClockKey = "server"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
	ErrNoReconnect    = errors.New("no reconnect token")
	ErrReceiveTimeout = errors.New("receive timeout")
	ErrNotConnected   = errors.New("not connected")
	ErrAlreadyStarted = errors.New("client already connected")
)

// Options 客户端参数，零值使用默认值
type Options struct {
	Clock             clockwork.Clock
	ClockAlpha        float64       // 时钟估计的 EWMA 权重
	HeartbeatInterval time.Duration // 小于 0 关闭心跳
	ReconnectAttempts int           // 小于 0 关闭自动重连
	ReconnectBackoff  time.Duration
}

// link 一条底层连接；重连时整体替换
type link struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// Client WebSocket 客户端
type Client struct {
	ServerURL string

	opts      Options
	clock     clockwork.Clock
	clockSync *clock.ClockSync
	state     *State
	receive   chan *protocol.Message

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	link       *link
	started    bool
	closed     bool
	playerID   string
	playerName string
	token      string
	roomID     string
	pending    *protocol.ConnectedPayload // 重连期间新连接分配的临时身份

	// 回调，均在读协程中调用
	OnMessage      func(*protocol.Message)     // 收到任意消息
	OnEvent        func(protocol.EventPayload) // 按序应用了一个会话事件
	OnReconnecting func(attempt, total int)    // 开始第 attempt 次重连
	OnReconnect    func()                      // 重连成功
	OnClose        func()                      // 连接彻底关闭

	reconnecting atomic.Bool // 等待服务器确认重连
	looping      atomic.Bool // 重连循环运行中
	closeOnce    sync.Once
}

// NewClient 创建客户端
func NewClient(serverURL string, opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = heartbeatInterval
	}
	if opts.ReconnectAttempts == 0 {
		opts.ReconnectAttempts = maxReconnectAttempts
	}
	if opts.ReconnectBackoff == 0 {
		opts.ReconnectBackoff = reconnectInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ServerURL: serverURL,
		opts:      opts,
		clock:     opts.Clock,
		clockSync: clock.NewClockSync(opts.ClockAlpha),
		state:     NewState(),
		receive:   make(chan *protocol.Message, sendBufferSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect 连接服务器并启动读写与心跳协程
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	l, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}
	if !c.attach(l) {
		return ErrClosed
	}
	if c.opts.HeartbeatInterval > 0 {
		go c.heartbeat()
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*link, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.ServerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.ServerURL, err)
	}
	return &link{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}, nil
}

// attach 替换当前连接并启动读写协程；客户端已关闭时返回 false
func (c *Client) attach(l *link) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		l.close()
		return false
	}
	c.link = l
	c.mu.Unlock()

	go c.readPump(l)
	go c.writePump(l)
	return true
}

// SendMessage 发送消息
func (c *Client) SendMessage(msg *protocol.Message) error {
	c.mu.RLock()
	l, closed := c.link, c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if l == nil {
		return ErrNotConnected
	}
	return c.sendOn(l, msg)
}

// Receive 接收消息（阻塞）
func (c *Client) Receive() (*protocol.Message, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}
	select {
	case msg := <-c.receive:
		return msg, nil
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

// ReceiveWithTimeout 带超时接收消息
func (c *Client) ReceiveWithTimeout(timeout time.Duration) (*protocol.Message, error) {
	if c.ctx.Err() != nil {
		return nil, ErrClosed
	}
	t := c.clock.NewTimer(timeout)
	defer t.Stop()

	select {
	case msg := <-c.receive:
		return msg, nil
	case <-t.Chan():
		return nil, ErrReceiveTimeout
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

// Done 客户端彻底关闭后关闭
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close 关闭连接，不再重连
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	l := c.link
	c.mu.Unlock()

	c.cancel()
	if l != nil {
		l.close()
	}
	c.closeOnce.Do(func() {
		if c.OnClose != nil {
			c.OnClose()
		}
	})
}

// IsConnected 是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.link == nil {
		return false
	}
	select {
	case <-c.link.done:
		return false
	default:
		return true
	}
}

// IsReconnecting 是否正在重连
func (c *Client) IsReconnecting() bool {
	return c.reconnecting.Load()
}

// PlayerID 当前玩家 ID
func (c *Client) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// PlayerName 当前昵称
func (c *Client) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

// ReconnectToken 重连令牌
func (c *Client) ReconnectToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// RoomID 当前所在房间
func (c *Client) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// State 当前对局视图
func (c *Client) State() View {
	return c.state.View()
}

// ClockEstimate 对服务器时钟的当前估计
func (c *Client) ClockEstimate() (clock.Estimate, bool) {
	return c.clockSync.Get(serverClockKey)
}

// Countdown 当前阶段剩余时间，按估计的服务器时间换算
func (c *Client) Countdown() time.Duration {
	v := c.state.View()
	if v.Deadline.IsZero() {
		return 0
	}
	return c.clockSync.Countdown(serverClockKey, v.Deadline, c.clock.Now())
}

func (c *Client) setIdentity(id, name, token string) {
	c.mu.Lock()
	c.playerID = id
	c.playerName = name
	if token != "" {
		c.token = token
	}
	c.mu.Unlock()
	c.state.SetSelf(id)
}

func (c *Client) setRoom(id string) {
	c.mu.Lock()
	c.roomID = id
	c.mu.Unlock()
}
