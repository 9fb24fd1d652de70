package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/game/presence"
	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/retry"
	"github.com/palemoky/quiz-rooms/internal/testutil"
)

const waitFor = 2 * time.Second

type harness struct {
	t      *testing.T
	clock  *clockwork.FakeClock
	pub    *testutil.RecordingPublisher
	qs     *testutil.StaticQuestions
	bots   *testutil.ScriptedPlayer
	o      *session.Orchestrator
	sum    chan session.Summary
	cancel context.CancelFunc
}

func defaultSettings() session.Settings {
	return session.Settings{
		RoomID:          "room-1",
		Category:        "test",
		Rounds:          3,
		RoundTime:       10 * time.Second,
		MinParticipants: 2,
		MaxParticipants: 4,
		Lobby:           time.Second,
		Countdown:       time.Second,
		Results:         2 * time.Second,
		SessionResults:  2 * time.Second,
		GracePeriod:     10 * time.Second,
		EventBuffer:     256,
		BaseScore:       500,
		SpeedBonus:      500,
		Retry:           retry.Policy{Attempts: 2},
	}
}

func humans(ids ...string) []session.Seat {
	seats := make([]session.Seat, 0, len(ids))
	for _, id := range ids {
		seats = append(seats, session.Seat{ID: id, Name: "player-" + id, Kind: session.KindHuman})
	}
	return seats
}

func newHarness(t *testing.T, mutate func(*session.Settings), seats []session.Seat) *harness {
	t.Helper()
	return newHarnessWithPublisher(t, mutate, seats, nil)
}

// newHarnessWithPublisher 与 newHarness 相同，wrap 非空时用它包装事件记录器
func newHarnessWithPublisher(t *testing.T, mutate func(*session.Settings), seats []session.Seat, wrap func(*testutil.RecordingPublisher) session.Publisher) *harness {
	t.Helper()

	settings := defaultSettings()
	if mutate != nil {
		mutate(&settings)
	}

	h := &harness{
		t:     t,
		clock: clockwork.NewFakeClock(),
		pub:   testutil.NewRecordingPublisher(),
		qs:    testutil.NewStaticQuestions(5),
		bots:  testutil.NewScriptedPlayer(),
		sum:   make(chan session.Summary, 1),
	}
	var pub session.Publisher = h.pub
	if wrap != nil {
		pub = wrap(h.pub)
	}
	h.o = session.New("sess-1", settings, seats, session.Deps{
		Clock:     h.clock,
		Questions: h.qs,
		Picker:    h.qs,
		Synthetic: h.bots,
		Publisher: pub,
		Snapshots: h.pub,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	t.Cleanup(cancel)
	go func() { h.sum <- h.o.Run(ctx) }()
	return h
}

// waitPhase 等待最近一次阶段事件为 p（round 为 0 时不检查轮次）
func (h *harness) waitPhase(p session.Phase, round int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		evs := h.pub.OfType(session.EventPhaseChanged)
		if len(evs) == 0 {
			return false
		}
		pc := evs[len(evs)-1].Data.(session.PhaseChanged)
		return pc.Phase == p && (round == 0 || pc.Round == round)
	}, waitFor, 2*time.Millisecond, "waiting for phase %s round %d, got %v", p, round, h.pub.Phases())
}

func (h *harness) summary() session.Summary {
	h.t.Helper()
	select {
	case s := <-h.sum:
		return s
	case <-time.After(waitFor):
		h.t.Fatalf("session did not finish, phases: %v", h.pub.Phases())
		return session.Summary{}
	}
}

// toFirstRound 从大厅推进到第一轮作答
func (h *harness) toFirstRound() {
	h.t.Helper()
	h.waitPhase(session.PhaseLobby, 0)
	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseCountdown, 0)
	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseQuestionActive, 1)
}

func (h *harness) answerFor(round int) string {
	evs := h.pub.OfType(session.EventPhaseChanged)
	for i := len(evs) - 1; i >= 0; i-- {
		pc := evs[i].Data.(session.PhaseChanged)
		if pc.Phase == session.PhaseQuestionActive && pc.Round == round {
			return h.qs.Answer(pc.QuestionID)
		}
	}
	h.t.Fatalf("round %d never started", round)
	return ""
}

func gradedRounds(pub *testutil.RecordingPublisher) []session.RoundGraded {
	var out []session.RoundGraded
	for _, ev := range pub.OfType(session.EventRoundGraded) {
		out = append(out, ev.Data.(session.RoundGraded))
	}
	return out
}

func resultFor(g session.RoundGraded, participantID string) (session.RoundResult, bool) {
	for _, r := range g.Results {
		if r.ParticipantID == participantID {
			return r, true
		}
	}
	return session.RoundResult{}, false
}

func assertContiguous(t *testing.T, evs []session.Event, from uint64) {
	t.Helper()
	for i, ev := range evs {
		require.Equal(t, from+uint64(i), ev.Sequence, "event %d (%s)", i, ev.Type)
		assert.Equal(t, "sess-1", ev.SessionID)
	}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.toFirstRound()

	// 第一轮：a 在 2s 答对，b 在 4s 答对，全部作答后提前判分
	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))
	h.clock.Advance(2 * time.Second)
	require.NoError(t, h.o.SubmitAnswer("b", h.answerFor(1), time.Time{}))
	h.waitPhase(session.PhaseQuestionResults, 1)

	// 第二轮：a 答错，b 答对
	h.clock.Advance(2 * time.Second)
	h.waitPhase(session.PhaseQuestionActive, 2)
	h.clock.Advance(time.Second)
	require.NoError(t, h.o.SubmitAnswer("a", "nope", time.Time{}))
	require.NoError(t, h.o.SubmitAnswer("b", h.answerFor(2), time.Time{}))
	h.waitPhase(session.PhaseQuestionResults, 2)

	// 第三轮：只有 a 作答，b 超时
	h.clock.Advance(2 * time.Second)
	h.waitPhase(session.PhaseQuestionActive, 3)
	h.clock.Advance(5 * time.Second)
	require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(3), time.Time{}))
	h.clock.Advance(5 * time.Second)
	h.waitPhase(session.PhaseQuestionResults, 3)

	h.clock.Advance(2 * time.Second)
	h.waitPhase(session.PhaseSessionResults, 0)
	h.clock.Advance(2 * time.Second)

	sum := h.summary()
	assert.Equal(t, session.OutcomeCompleted, sum.Outcome)
	assert.Equal(t, session.PhaseArchived, h.o.Phase())

	assert.Equal(t, []session.Phase{
		session.PhaseLobby, session.PhaseCountdown,
		session.PhaseQuestionActive, session.PhaseQuestionGrading, session.PhaseQuestionResults,
		session.PhaseQuestionActive, session.PhaseQuestionGrading, session.PhaseQuestionResults,
		session.PhaseQuestionActive, session.PhaseQuestionGrading, session.PhaseQuestionResults,
		session.PhaseSessionResults, session.PhaseArchived,
	}, h.pub.Phases())

	graded := gradedRounds(h.pub)
	require.Len(t, graded, 3)

	a1, _ := resultFor(graded[0], "a")
	b1, _ := resultFor(graded[0], "b")
	assert.True(t, a1.Correct)
	assert.True(t, b1.Correct)
	assert.Greater(t, a1.Delta, b1.Delta, "faster correct answer scores strictly more")
	assert.Equal(t, 902, a1.Delta)
	assert.Equal(t, 801, b1.Delta)

	a2, _ := resultFor(graded[1], "a")
	assert.False(t, a2.Correct)
	assert.Zero(t, a2.Delta)

	b3, _ := resultFor(graded[2], "b")
	assert.True(t, b3.NoAnswer)

	require.Len(t, sum.Standings, 2)
	assert.Equal(t, "b", sum.Standings[0].ParticipantID)
	assert.Equal(t, 1752, sum.Standings[0].Score)
	assert.Equal(t, 1653, sum.Standings[1].Score)
	assert.Equal(t, session.Stats{RoundsPlayed: 3, Answered: 3, Correct: 2}, sum.Standings[1].Stats)

	archived := h.pub.OfType(session.EventSessionArchived)
	require.Len(t, archived, 1)
	assert.Equal(t, session.OutcomeCompleted, archived[0].Data.(session.SessionArchived).Outcome)

	// 序号严格递增且无间隙
	evs := h.pub.Events()
	assertContiguous(t, evs, 1)
	assert.Equal(t, uint64(len(evs)), sum.Sequence)

	// 每次阶段切换都写快照
	assert.NotEmpty(t, h.pub.Snapshots())
	assert.Equal(t, session.PhaseArchived, h.pub.Snapshots()[len(h.pub.Snapshots())-1].Phase)
}

func TestOrchestrator_SubmitAnswerRejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b", "c"))
	h.waitPhase(session.PhaseLobby, 0)

	assert.ErrorIs(t, h.o.SubmitAnswer("a", "x", time.Time{}), apperrors.ErrNotAccepting)
	assert.ErrorIs(t, h.o.SubmitAnswer("ghost", "x", time.Time{}), apperrors.ErrNotInSession)

	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseCountdown, 0)
	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseQuestionActive, 1)

	require.NoError(t, h.o.SubmitAnswer("a", "first", time.Time{}))
	err := h.o.SubmitAnswer("a", h.answerFor(1), time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAnswered)
	assert.Equal(t, "already-answered", err.Error())

	h.clock.Advance(10 * time.Second)
	h.waitPhase(session.PhaseQuestionResults, 1)

	assert.ErrorIs(t, h.o.SubmitAnswer("a", "again", time.Time{}), apperrors.ErrAlreadyAnswered)
	err = h.o.SubmitAnswer("b", "late", time.Time{})
	assert.ErrorIs(t, err, apperrors.ErrTooLate)
	assert.Equal(t, "too-late", err.Error())

	// 第一次提交的答案没有被覆盖
	graded := gradedRounds(h.pub)
	require.Len(t, graded, 1)
	a, ok := resultFor(graded[0], "a")
	require.True(t, ok)
	assert.Equal(t, "first", a.Answer)
	assert.False(t, a.Correct)

	h.cancel()
	sum := h.summary()
	assert.Equal(t, session.ReasonShutdown, sum.Reason)
	assert.ErrorIs(t, h.o.SubmitAnswer("a", "x", time.Time{}), apperrors.ErrSessionClosed)
}

// gatedPublisher 在 hold 命中的第一个事件上阻塞 actor，直到 release 关闭
type gatedPublisher struct {
	*testutil.RecordingPublisher
	hold    func(session.Event) bool
	held    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedPublisher) Publish(roomID string, ev session.Event) {
	g.RecordingPublisher.Publish(roomID, ev)
	if g.hold(ev) {
		g.once.Do(func() {
			close(g.held)
			<-g.release
		})
	}
}

func TestOrchestrator_AnswerQueuedAcrossRoundBoundaryIsTooLate(t *testing.T) {
	t.Parallel()

	for i := range 10 {
		t.Run(fmt.Sprintf("run %d", i), func(t *testing.T) {
			t.Parallel()

			var gate *gatedPublisher
			h := newHarnessWithPublisher(t, nil, humans("a", "b"), func(rec *testutil.RecordingPublisher) session.Publisher {
				gate = &gatedPublisher{
					RecordingPublisher: rec,
					hold: func(ev session.Event) bool {
						pc, ok := ev.Data.(session.PhaseChanged)
						return ok && pc.Phase == session.PhaseQuestionResults && pc.Round == 1
					},
					held:    make(chan struct{}),
					release: make(chan struct{}),
				}
				return gate
			})
			h.toFirstRound()
			require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))

			// 第一轮到时，actor 停在发布 QuestionResults 上
			h.clock.Advance(10 * time.Second)
			select {
			case <-gate.held:
			case <-time.After(waitFor):
				t.Fatalf("results never published, phases: %v", h.pub.Phases())
			}

			// 结果阶段收到的答案在队列中等待
			stale := h.answerFor(1)
			errc := make(chan error, 1)
			go func() { errc <- h.o.SubmitAnswer("b", stale, time.Time{}) }()
			require.Eventually(t, func() bool { return h.o.QueuedCommands() == 1 }, waitFor, time.Millisecond)

			// 结果阶段也到时，两条消息同时待处理
			h.clock.Advance(2 * time.Second)
			require.Eventually(t, func() bool { return h.o.PendingExpiries() == 1 }, waitFor, time.Millisecond)
			close(gate.release)

			select {
			case err := <-errc:
				assert.ErrorIs(t, err, apperrors.ErrTooLate)
			case <-time.After(waitFor):
				t.Fatal("submit never returned")
			}

			h.waitPhase(session.PhaseQuestionActive, 2)
			for _, ev := range h.pub.OfType(session.EventAnswerAccepted) {
				aa := ev.Data.(session.AnswerAccepted)
				assert.False(t, aa.ParticipantID == "b" && aa.Round == 2, "stale answer accepted into round 2")
			}

			// 第二轮照常作答
			require.NoError(t, h.o.SubmitAnswer("b", h.answerFor(2), time.Time{}))
			h.cancel()
			h.summary()
		})
	}
}

func TestOrchestrator_GradesExactlyOnce(t *testing.T) {
	t.Parallel()

	for range 20 {
		h := newHarness(t, func(s *session.Settings) { s.Rounds = 1 }, humans("a", "b"))
		h.toFirstRound()

		h.clock.Advance(9 * time.Second)
		require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))

		// 最后一个答案与计时器到期几乎同时发生
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.o.SubmitAnswer("b", h.answerFor(1), time.Time{})
		}()
		go func() {
			defer wg.Done()
			h.clock.Advance(time.Second)
		}()
		wg.Wait()

		h.waitPhase(session.PhaseQuestionResults, 1)
		assert.Never(t, func() bool {
			return len(h.pub.OfType(session.EventRoundGraded)) != 1
		}, 20*time.Millisecond, 2*time.Millisecond)
		h.cancel()
		h.summary()
	}
}

func TestOrchestrator_DisconnectAndRecover(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.toFirstRound()

	// a 在第 2 秒掉线
	h.clock.Advance(2 * time.Second)
	require.True(t, h.o.ConnectionLost("a"))
	require.Eventually(t, func() bool { return len(h.pub.Statuses("a")) == 1 }, waitFor, 2*time.Millisecond)
	lastSeen := h.pub.Events()[len(h.pub.Events())-2].Sequence // a 只收到了掉线前的事件

	// b 作答，但 a 仍在宽限期内，不提前判分
	h.clock.Advance(time.Second)
	require.NoError(t, h.o.SubmitAnswer("b", h.answerFor(1), time.Time{}))
	assert.Equal(t, session.PhaseQuestionActive, h.o.Phase())

	// 第 5 秒重连
	h.clock.Advance(2 * time.Second)
	require.True(t, h.o.ConnectionRecovered("a", lastSeen))
	require.Eventually(t, func() bool { return len(h.pub.Resyncs("a")) == 1 }, waitFor, 2*time.Millisecond)

	statuses := h.pub.Statuses("a")
	require.Len(t, statuses, 2)
	assert.Equal(t, presence.GracePeriod, statuses[0].Status)
	assert.NotZero(t, statuses[0].GraceUntilMs)
	assert.Equal(t, presence.Connected, statuses[1].Status)

	// 补发的事件与一直在线的客户端看到的完全一致
	res := h.pub.Resyncs("a")[0]
	require.Nil(t, res.Snapshot)
	require.NotEmpty(t, res.Events)
	all := h.pub.Events()
	assertContiguous(t, res.Events, lastSeen+1)
	assert.Equal(t, all[lastSeen:lastSeen+uint64(len(res.Events))], res.Events)
	assert.Equal(t, session.EventParticipantStatusChanged, res.Events[len(res.Events)-1].Type)

	// a 仍可在截止前作答
	h.clock.Advance(time.Second)
	require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))
	h.waitPhase(session.PhaseQuestionResults, 1)

	a, ok := resultFor(gradedRounds(h.pub)[0], "a")
	require.True(t, ok)
	assert.True(t, a.Correct)

	// 宽限期原本的到期时间过去后也不会被接管
	h.clock.Advance(10 * time.Second)
	assert.Never(t, func() bool {
		for _, s := range h.pub.Statuses("a") {
			if s.Status == presence.Replaced {
				return true
			}
		}
		return false
	}, 30*time.Millisecond, 3*time.Millisecond)
}

func TestOrchestrator_DisconnectTimeoutTakeover(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) {
		s.MinParticipants = 1
		s.AllowSyntheticFill = true
		s.Results = 5 * time.Second
	}, humans("a", "b"))
	h.toFirstRound()

	h.clock.Advance(2 * time.Second)
	require.True(t, h.o.ConnectionLost("a"))
	require.Eventually(t, func() bool { return len(h.pub.Statuses("a")) == 1 }, waitFor, 2*time.Millisecond)

	// 第一轮按截止时间判分，宽限期中的 a 记为未作答
	h.clock.Advance(8 * time.Second)
	h.waitPhase(session.PhaseQuestionResults, 1)
	a1, ok := resultFor(gradedRounds(h.pub)[0], "a")
	require.True(t, ok)
	assert.True(t, a1.NoAnswer)
	assert.False(t, a1.Excluded)

	// 第 12 秒宽限期结束，座位被托管玩家接管
	h.clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(h.pub.Statuses("a")) == 2 }, waitFor, 2*time.Millisecond)
	replaced := h.pub.Statuses("a")[1]
	assert.Equal(t, presence.Replaced, replaced.Status)
	assert.Equal(t, session.KindSynthetic, replaced.Kind)
	assert.False(t, h.o.ConnectionRecovered("a", 0))

	// 之后的轮次由托管玩家作答
	h.clock.Advance(3 * time.Second)
	h.waitPhase(session.PhaseQuestionActive, 2)
	require.Eventually(t, func() bool { return h.bots.Calls("a") == 1 }, waitFor, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, ev := range h.pub.OfType(session.EventAnswerAccepted) {
			if aa := ev.Data.(session.AnswerAccepted); aa.ParticipantID == "a" && aa.Round == 2 {
				return aa.Synthetic
			}
		}
		return false
	}, waitFor, 2*time.Millisecond)

	assert.ErrorIs(t, h.o.SubmitAnswer("a", "me", time.Time{}), apperrors.ErrSeatReplaced)
	require.NoError(t, h.o.SubmitAnswer("b", h.answerFor(2), time.Time{}))
	h.waitPhase(session.PhaseQuestionResults, 2)

	a2, ok := resultFor(gradedRounds(h.pub)[1], "a")
	require.True(t, ok)
	assert.True(t, a2.Synthetic)
	assert.True(t, a2.Correct)
}

func TestOrchestrator_TakeoverOnGrace(t *testing.T) {
	t.Parallel()

	on, off := true, false
	tests := []struct {
		name     string
		fill     bool
		takeover *bool
		wantKind session.Kind
	}{
		{"follows fill flag when unset", true, nil, session.KindSynthetic},
		{"enabled without fill", false, &on, session.KindSynthetic},
		{"disabled with fill", true, &off, session.KindHuman},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, func(s *session.Settings) {
				s.MinParticipants = 1
				s.AllowSyntheticFill = tt.fill
				s.TakeoverOnGrace = tt.takeover
			}, humans("a", "b"))
			h.toFirstRound()

			require.True(t, h.o.ConnectionLost("a"))
			h.clock.Advance(10 * time.Second)
			require.Eventually(t, func() bool { return len(h.pub.Statuses("a")) == 2 }, waitFor, 2*time.Millisecond)

			replaced := h.pub.Statuses("a")[1]
			assert.Equal(t, presence.Replaced, replaced.Status)
			assert.Equal(t, tt.wantKind, replaced.Kind)
			assert.ErrorIs(t, h.o.SubmitAnswer("a", "me", time.Time{}), apperrors.ErrSeatReplaced)
		})
	}
}

func TestOrchestrator_GracePolicyExclude(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) {
		s.MinParticipants = 1
		s.Rounds = 1
		s.GracePolicy = "exclude"
		s.GracePeriod = 30 * time.Second
	}, humans("a", "b"))
	h.toFirstRound()

	require.True(t, h.o.ConnectionLost("a"))
	require.NoError(t, h.o.SubmitAnswer("b", h.answerFor(1), time.Time{}))
	h.clock.Advance(10 * time.Second)
	h.waitPhase(session.PhaseQuestionResults, 1)

	a, ok := resultFor(gradedRounds(h.pub)[0], "a")
	require.True(t, ok)
	assert.True(t, a.NoAnswer)
	assert.True(t, a.Excluded)

	snap := h.o.Snapshot()
	for _, p := range snap.Participants {
		if p.ID == "a" {
			assert.Zero(t, p.Stats.RoundsPlayed)
		}
	}
}

func TestOrchestrator_MinimumParticipantAbort(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.toFirstRound()

	// b 主动离开，座位空出且不允许补位
	require.NoError(t, h.o.Leave("b"))
	require.Eventually(t, func() bool { return len(h.pub.Statuses("b")) == 1 }, waitFor, 2*time.Millisecond)
	assert.Equal(t, presence.Replaced, h.pub.Statuses("b")[0].Status)
	assert.Equal(t, session.KindHuman, h.pub.Statuses("b")[0].Kind)

	h.clock.Advance(10 * time.Second)
	h.waitPhase(session.PhaseQuestionResults, 1)
	_, counted := resultFor(gradedRounds(h.pub)[0], "b")
	assert.False(t, counted, "vacated seat is not graded")

	// 下一个阶段边界中止
	h.clock.Advance(2 * time.Second)
	sum := h.summary()
	assert.Equal(t, session.OutcomeAborted, sum.Outcome)
	assert.Equal(t, session.ReasonInsufficientParticipants, sum.Reason)
	assert.Empty(t, sum.Standings)

	assert.Equal(t, session.PhaseAborted, h.pub.LastPhase())
	archived := h.pub.OfType(session.EventSessionArchived)
	require.Len(t, archived, 1)
	assert.Equal(t, session.SessionArchived{Outcome: session.OutcomeAborted, Reason: session.ReasonInsufficientParticipants},
		archived[0].Data)
	assertContiguous(t, h.pub.Events(), 1)
}

func TestOrchestrator_GraceSeatDoesNotCountAtBoundary(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.waitPhase(session.PhaseLobby, 0)

	require.True(t, h.o.ConnectionLost("b"))
	require.Eventually(t, func() bool { return len(h.pub.Statuses("b")) == 1 }, waitFor, 2*time.Millisecond)
	h.clock.Advance(time.Second)

	sum := h.summary()
	assert.Equal(t, session.ReasonInsufficientParticipants, sum.Reason)
}

func TestOrchestrator_SyntheticBackfill(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) {
		s.AllowSyntheticFill = true
		s.Rounds = 1
	}, humans("a"))
	h.waitPhase(session.PhaseLobby, 0)
	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseCountdown, 0)

	joined := h.pub.OfType(session.EventParticipantJoined)
	require.Len(t, joined, 1)
	bot := joined[0].Data.(session.ParticipantJoined)
	assert.Equal(t, session.KindSynthetic, bot.Kind)
	assert.True(t, h.o.HasSeat(bot.ParticipantID))

	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseQuestionActive, 1)
	require.Eventually(t, func() bool { return h.bots.Calls(bot.ParticipantID) == 1 }, waitFor, 2*time.Millisecond)

	// 托管玩家已作答，真人作答后提前判分
	require.Eventually(t, func() bool { return len(h.pub.OfType(session.EventAnswerAccepted)) == 1 }, waitFor, 2*time.Millisecond)
	require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))
	h.waitPhase(session.PhaseQuestionResults, 1)
}

func TestOrchestrator_SyntheticPassDoesNotBlock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) {
		s.AllowSyntheticFill = true
		s.Rounds = 1
	}, []session.Seat{{ID: "a", Kind: session.KindHuman}, {ID: "bot", Kind: session.KindSynthetic}})
	h.bots.Pass["bot"] = true
	h.toFirstRound()

	require.Eventually(t, func() bool { return h.bots.Calls("bot") == 1 }, waitFor, 2*time.Millisecond)
	require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))
	h.waitPhase(session.PhaseQuestionResults, 1)

	r, ok := resultFor(gradedRounds(h.pub)[0], "bot")
	require.True(t, ok)
	assert.True(t, r.NoAnswer)
}

func TestOrchestrator_LobbyJoinAndLeave(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) { s.MaxParticipants = 3 }, humans("a", "b"))
	h.waitPhase(session.PhaseLobby, 0)

	require.NoError(t, h.o.Join(session.Seat{ID: "c", Name: "C"}))
	require.NoError(t, h.o.Join(session.Seat{ID: "c", Name: "C"}), "joining twice is idempotent")
	assert.ErrorIs(t, h.o.Join(session.Seat{ID: "d"}), apperrors.ErrRoomFull)

	require.NoError(t, h.o.Leave("c"))
	assert.False(t, h.o.HasSeat("c"))
	assert.ErrorIs(t, h.o.Leave("c"), apperrors.ErrNotInSession)
	assert.Len(t, h.pub.OfType(session.EventParticipantJoined), 1)
	assert.Len(t, h.pub.OfType(session.EventParticipantLeft), 1)

	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseCountdown, 0)
	assert.ErrorIs(t, h.o.Join(session.Seat{ID: "e"}), apperrors.ErrGameStarted)
}

func TestOrchestrator_ResyncFallsBackToSnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) { s.EventBuffer = 3 }, humans("a", "b"))
	h.toFirstRound()
	require.NoError(t, h.o.SubmitAnswer("a", h.answerFor(1), time.Time{}))

	latest := h.pub.Events()[len(h.pub.Events())-1].Sequence
	require.Greater(t, latest, uint64(3))

	res := h.o.RequestResync("b", latest-2)
	require.Nil(t, res.Snapshot)
	assertContiguous(t, res.Events, latest-1)

	res = h.o.RequestResync("b", latest)
	assert.Empty(t, res.Events)
	assert.Nil(t, res.Snapshot)

	res = h.o.RequestResync("b", 0)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, session.PhaseQuestionActive, res.Snapshot.Phase)
	assert.Equal(t, latest, res.Snapshot.Sequence)
	assert.Equal(t, 1, res.Snapshot.Round)
	assert.NotEmpty(t, res.Snapshot.Prompt)
	require.Len(t, res.Snapshot.Participants, 2)
	assert.True(t, res.Snapshot.Participants[0].Answered)
	assert.False(t, res.Snapshot.Participants[1].Answered)

	wire, err := res.Wire()
	require.NoError(t, err)
	assert.Equal(t, "question_active", wire.Snapshot.Phase)
}

func TestOrchestrator_QuestionSourceFailureAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.qs.FailResolve.Store(-1)
	h.waitPhase(session.PhaseLobby, 0)
	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseCountdown, 0)
	h.clock.Advance(time.Second)

	sum := h.summary()
	assert.Equal(t, session.ReasonQuestionSourceFailed, sum.Reason)
	assert.Equal(t, int32(2), h.qs.ResolveCalls.Load(), "retried up to the configured attempts")
}

func TestOrchestrator_QuestionSourceRecoversWithinRetries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.qs.FailResolve.Store(1)
	h.toFirstRound()
	assert.Equal(t, int32(2), h.qs.ResolveCalls.Load())
}

func TestOrchestrator_SyntheticFailureAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(s *session.Settings) { s.AllowSyntheticFill = true },
		[]session.Seat{{ID: "a", Kind: session.KindHuman}, {ID: "bot", Kind: session.KindSynthetic}})
	h.bots.SetErr(errors.New("model offline"))
	h.waitPhase(session.PhaseLobby, 0)
	h.clock.Advance(time.Second)
	h.waitPhase(session.PhaseCountdown, 0)
	h.clock.Advance(time.Second)

	sum := h.summary()
	assert.Equal(t, session.ReasonSyntheticFailed, sum.Reason)
	assert.Equal(t, 2, h.bots.Calls("bot"))
}

func TestOrchestrator_ShutdownAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, humans("a", "b"))
	h.toFirstRound()
	h.cancel()

	sum := h.summary()
	assert.Equal(t, session.OutcomeAborted, sum.Outcome)
	assert.Equal(t, session.ReasonShutdown, sum.Reason)
	assert.Equal(t, session.PhaseAborted, h.o.Phase())

	// 结束后仍可读取快照与补发
	snap := h.o.Snapshot()
	assert.Equal(t, session.PhaseAborted, snap.Phase)
	assert.Equal(t, session.ReasonShutdown, snap.Reason)
	res := h.o.RequestResync("a", sum.Sequence-1)
	require.Len(t, res.Events, 1)
	assert.Equal(t, session.EventSessionArchived, res.Events[0].Type)
}
