package session

// EventLog 固定容量的事件环形缓冲。只由会话的 actor 写入。
type EventLog struct {
	buf   []Event
	start int
	count int
}

// NewEventLog 创建容量为 capacity 的事件缓冲
func NewEventLog(capacity int) *EventLog {
	return &EventLog{buf: make([]Event, max(capacity, 1))}
}

// Append 追加事件，满时覆盖最旧的事件
func (l *EventLog) Append(ev Event) {
	if l.count < len(l.buf) {
		l.buf[(l.start+l.count)%len(l.buf)] = ev
		l.count++
		return
	}
	l.buf[l.start] = ev
	l.start = (l.start + 1) % len(l.buf)
}

// Len 当前保留的事件数
func (l *EventLog) Len() int {
	return l.count
}

// Oldest 最旧保留事件的序号，空时为 0
func (l *EventLog) Oldest() uint64 {
	if l.count == 0 {
		return 0
	}
	return l.buf[l.start].Sequence
}

// Latest 最新事件序号，空时为 0
func (l *EventLog) Latest() uint64 {
	if l.count == 0 {
		return 0
	}
	return l.buf[(l.start+l.count-1)%len(l.buf)].Sequence
}

// Since 返回序号大于 lastSeq 的事件。
// 缺口超出保留窗口时返回 false，调用方应改用快照。
func (l *EventLog) Since(lastSeq uint64) ([]Event, bool) {
	if l.count == 0 || lastSeq >= l.Latest() {
		return nil, true
	}
	if lastSeq+1 < l.Oldest() {
		return nil, false
	}

	skip := int(lastSeq + 1 - l.Oldest())
	out := make([]Event, 0, l.count-skip)
	for i := skip; i < l.count; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out, true
}
