package broadcast

import "github.com/palemoky/quiz-rooms/internal/game/session"

// Fanout 把同一事件交给多个发布器，nil 项被跳过
type Fanout []session.Publisher

// Publish 实现 session.Publisher
func (f Fanout) Publish(roomID string, ev session.Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(roomID, ev)
		}
	}
}

// SendResync 实现 session.Publisher
func (f Fanout) SendResync(roomID, participantID string, res session.ResyncResult) {
	for _, p := range f {
		if p != nil {
			p.SendResync(roomID, participantID, res)
		}
	}
}
