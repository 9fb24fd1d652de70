package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/game/presence"
	"github.com/palemoky/quiz-rooms/internal/game/question"
	"github.com/palemoky/quiz-rooms/internal/game/synthetic"
	"github.com/palemoky/quiz-rooms/internal/game/timer"
	"github.com/palemoky/quiz-rooms/internal/logger"
	"github.com/palemoky/quiz-rooms/internal/retry"
)

// Deps 外部协作者
type Deps struct {
	Clock     clockwork.Clock
	Timer     *timer.ServerTimer // 可与其他会话共享
	Questions question.Source
	Picker    question.Picker
	Synthetic synthetic.Player // nil 表示不支持托管补位与接管
	Publisher Publisher
	Snapshots SnapshotSink
}

// Orchestrator 一局游戏的阶段状态机。
// 所有会话状态只在 Run 所在的 goroutine 中读写，外部调用通过消息传递进入。
type Orchestrator struct {
	id       string
	settings Settings
	deps     Deps
	clock    clockwork.Clock
	timer    *timer.ServerTimer
	registry *presence.Registry
	presence *presence.Handler
	logger   zerolog.Logger

	cmds    *mailbox
	status  *mailbox
	expired chan timer.TimerState
	done    chan struct{}
	started atomic.Bool
	view    atomic.Value // Phase

	// 以下字段只由 actor 访问；done 关闭后冻结，可直接读取
	ctx          context.Context
	roundCtx     context.Context
	moveCancel   context.CancelFunc
	phase        Phase
	seq          uint64
	createdAt    time.Time
	participants map[string]*Participant
	order        []string
	questionIDs  []string
	rounds       []*Round
	current      *question.Question
	deadline     time.Time
	timerGen     uint64
	reason       AbortReason
	events       *EventLog
	summary      Summary
}

// New 创建一局游戏，seats 为开局时已入座的参与者
func New(id string, settings Settings, seats []Seat, deps Deps) *Orchestrator {
	settings.normalize()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Timer == nil {
		deps.Timer = timer.NewServerTimer(deps.Clock)
	}

	o := &Orchestrator{
		id:           id,
		settings:     settings,
		deps:         deps,
		clock:        deps.Clock,
		timer:        deps.Timer,
		registry:     presence.NewRegistry(),
		logger:       log.With().Str("room_id", settings.RoomID).Str("session_id", id).Logger(),
		cmds:         newMailbox(),
		status:       newMailbox(),
		expired:      make(chan timer.TimerState, 4),
		done:         make(chan struct{}),
		moveCancel:   func() {},
		phase:        PhaseLobby,
		createdAt:    deps.Clock.Now(),
		participants: make(map[string]*Participant),
		events:       NewEventLog(settings.EventBuffer),
	}
	o.presence = presence.NewHandler(o.registry, o.clock, settings.GracePeriod, presenceListener{o})
	o.view.Store(PhaseLobby)

	for _, s := range seats {
		if _, dup := o.participants[s.ID]; dup || len(o.order) >= settings.MaxParticipants {
			continue
		}
		o.seat(s)
	}
	return o
}

// ID 会话 ID
func (o *Orchestrator) ID() string { return o.id }

// RoomID 所属房间
func (o *Orchestrator) RoomID() string { return o.settings.RoomID }

// Phase 当前阶段（无锁读取）
func (o *Orchestrator) Phase() Phase { return o.view.Load().(Phase) }

// Done Run 结束后关闭
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Registry 连接登记表
func (o *Orchestrator) Registry() *presence.Registry { return o.registry }

// HasSeat 是否在本局有座位
func (o *Orchestrator) HasSeat(participantID string) bool {
	_, ok := o.registry.Status(participantID)
	return ok
}

// Run 驱动整局直到归档或中止，阻塞至结束。只能调用一次
func (o *Orchestrator) Run(ctx context.Context) (sum Summary) {
	if !o.started.CompareAndSwap(false, true) {
		<-o.done
		return o.summary
	}

	ctx, cancel := context.WithCancel(ctx)
	o.ctx = ctx

	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			o.forceAbort(ReasonInternalError)
		}
		o.moveCancel()
		cancel()
		o.presence.Close()
		o.timer.Forget(o.id)
		o.summary = o.buildSummary()
		sum = o.summary
		close(o.done)
	}()

	o.timer.OnExpire(o.id, func(st timer.TimerState) {
		select {
		case o.expired <- st:
		case <-o.done:
		}
	})

	o.logger.Info().Int("seats", len(o.order)).Int("rounds", o.settings.Rounds).Msg("🎮 对局开始")
	o.enterLobby()

	for !o.phase.Terminal() {
		select {
		case <-ctx.Done():
			o.abort(ReasonShutdown)
		case st := <-o.expired:
			o.onDeadline(st)
		case <-o.status.signal:
			o.runQueued(o.status)
		case <-o.cmds.signal:
			o.runQueued(o.cmds)
		}
	}
	return
}

func (o *Orchestrator) runQueued(m *mailbox) {
	for _, fn := range m.drain() {
		if o.phase.Terminal() {
			return
		}
		fn()
	}
}

// call 在 actor 中执行 fn。会话已结束且 fn 未被执行时返回 false
func (o *Orchestrator) call(fn func()) bool {
	reply := make(chan struct{}, 1)
	o.cmds.push(func() {
		fn()
		reply <- struct{}{}
	})

	select {
	case <-reply:
		return true
	case <-o.done:
		select {
		case <-reply:
			return true
		default:
			return false
		}
	}
}

// --- 外部命令 ---

// SubmitAnswer 提交答案，以服务器收到的时间为准，clientTimestamp 仅记录日志
func (o *Orchestrator) SubmitAnswer(participantID, answer string, clientTimestamp time.Time) error {
	_, err := o.Submit(participantID, answer, clientTimestamp)
	return err
}

// Submit 同 SubmitAnswer，另外返回处理该答案时所在的轮次
func (o *Orchestrator) Submit(participantID, answer string, clientTimestamp time.Time) (round int, err error) {
	receivedAt := o.clock.Now()
	if !o.call(func() {
		err = o.submit(participantID, answer, receivedAt, false)
		round = len(o.rounds)
	}) {
		return 0, apperrors.ErrSessionClosed
	}
	if err != nil {
		o.logger.Debug().
			Str("participant_id", participantID).
			Time("client_ts", clientTimestamp).
			Err(err).
			Msg("答案被拒绝")
	}
	return round, err
}

// RequestResync 返回 lastKnownSequence 之后的事件；超出保留窗口时返回快照
func (o *Orchestrator) RequestResync(participantID string, lastKnownSequence uint64) ResyncResult {
	var res ResyncResult
	if !o.call(func() { res = o.resync(lastKnownSequence) }) {
		res = o.resync(lastKnownSequence)
	}
	o.logger.Debug().
		Str("participant_id", participantID).
		Uint64("last_sequence", lastKnownSequence).
		Int("events", len(res.Events)).
		Bool("snapshot", res.Snapshot != nil).
		Msg("补发事件")
	return res
}

// Snapshot 当前全量状态
func (o *Orchestrator) Snapshot() Snapshot {
	var snap Snapshot
	if !o.call(func() { snap = o.snapshot() }) {
		snap = o.snapshot()
	}
	return snap
}

// Join 大厅阶段入座
func (o *Orchestrator) Join(s Seat) error {
	var err error
	if !o.call(func() { err = o.join(s) }) {
		return apperrors.ErrSessionClosed
	}
	return err
}

// Leave 离开：大厅阶段直接离座，开局后视为立即接管
func (o *Orchestrator) Leave(participantID string) error {
	var err error
	if !o.call(func() { err = o.leave(participantID) }) {
		return apperrors.ErrSessionClosed
	}
	return err
}

// ConnectionLost 玩家连接断开，进入宽限期
func (o *Orchestrator) ConnectionLost(participantID string) bool {
	return o.presence.OnConnectionLost(participantID)
}

// ConnectionRecovered 宽限期内重连；成功后会向该玩家补发事件
func (o *Orchestrator) ConnectionRecovered(participantID string, lastSequence uint64) bool {
	return o.presence.OnConnectionRecovered(participantID, lastSequence)
}

// GraceDeadline 宽限期截止时间
func (o *Orchestrator) GraceDeadline(participantID string) (time.Time, bool) {
	return o.presence.GraceDeadline(participantID)
}

// presenceListener 把连接状态变化投递到 actor
type presenceListener struct{ o *Orchestrator }

func (l presenceListener) ParticipantStatusChanged(participantID string, s presence.Status) {
	l.o.status.push(func() { l.o.applyStatus(participantID, s) })
}

func (l presenceListener) ParticipantRecovered(participantID string, lastSequence uint64) {
	l.o.status.push(func() { l.o.sendResync(participantID, lastSequence) })
}

// --- actor 内部 ---

func (o *Orchestrator) submit(participantID, answer string, receivedAt time.Time, fromSynthetic bool) error {
	p, ok := o.participants[participantID]
	if !ok {
		return apperrors.ErrNotInSession
	}
	if o.phase.Terminal() {
		return apperrors.ErrSessionClosed
	}
	if !fromSynthetic && p.Kind == KindSynthetic {
		return apperrors.ErrSeatReplaced
	}
	if !fromSynthetic && p.Status == presence.Replaced {
		return apperrors.ErrSeatReplaced
	}

	r := o.currentRound()
	switch o.phase {
	case PhaseQuestionActive, PhaseQuestionGrading, PhaseQuestionResults:
		// 本轮开始前收到的答案属于上一轮，排队期间轮次已切换
		if receivedAt.Before(r.StartedAt) {
			return apperrors.ErrTooLate
		}
		if _, dup := r.Submissions[participantID]; dup {
			return apperrors.ErrAlreadyAnswered
		}
		if o.phase != PhaseQuestionActive {
			return apperrors.ErrTooLate
		}
	default:
		return apperrors.ErrNotAccepting
	}
	if !receivedAt.Before(r.Deadline) {
		return apperrors.ErrTooLate
	}

	r.Submissions[participantID] = &Submission{
		ParticipantID: participantID,
		Answer:        answer,
		ReceivedAt:    receivedAt,
		Order:         r.nextOrder,
		Synthetic:     fromSynthetic,
	}
	r.nextOrder++

	o.commit(EventAnswerAccepted, AnswerAccepted{ParticipantID: participantID, Round: r.Index, Synthetic: fromSynthetic})
	o.maybeGradeEarly()
	return nil
}

func (o *Orchestrator) join(s Seat) error {
	if o.phase.Terminal() {
		return apperrors.ErrSessionClosed
	}
	if _, ok := o.participants[s.ID]; ok {
		return nil
	}
	if o.phase != PhaseLobby {
		return apperrors.ErrGameStarted
	}
	if len(o.order) >= o.settings.MaxParticipants {
		return apperrors.ErrRoomFull
	}
	p := o.seat(s)
	o.commit(EventParticipantJoined, ParticipantJoined{ParticipantID: p.ID, Name: p.Name, Kind: p.Kind})
	return nil
}

func (o *Orchestrator) leave(participantID string) error {
	if _, ok := o.participants[participantID]; !ok {
		return apperrors.ErrNotInSession
	}
	if o.phase.Terminal() {
		return nil
	}

	if o.phase == PhaseLobby {
		delete(o.participants, participantID)
		for i, id := range o.order {
			if id == participantID {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
		o.registry.Remove(participantID)
		o.commit(EventParticipantLeft, ParticipantLeft{ParticipantID: participantID})
		return nil
	}

	// 状态变化经由 presenceListener 回到 actor
	o.presence.ReplaceNow(participantID)
	return nil
}

func (o *Orchestrator) seat(s Seat) *Participant {
	if s.Kind == "" {
		s.Kind = KindHuman
	}
	p := &Participant{
		ID:       s.ID,
		Name:     s.Name,
		Kind:     s.Kind,
		Status:   presence.Connected,
		JoinedAt: o.clock.Now(),
	}
	o.participants[p.ID] = p
	o.order = append(o.order, p.ID)
	o.registry.Add(p.ID)
	return p
}

func (o *Orchestrator) applyStatus(participantID string, s presence.Status) {
	p, ok := o.participants[participantID]
	if !ok || p.Status == s || o.phase.Terminal() {
		return
	}
	p.Status = s

	ev := ParticipantStatusChanged{ParticipantID: participantID, Status: s}
	switch s {
	case presence.GracePeriod:
		if dl, ok := o.presence.GraceDeadline(participantID); ok {
			ev.GraceUntilMs = dl.UnixMilli()
		}
	case presence.Replaced:
		o.takeover(p)
	}
	ev.Kind = p.Kind

	o.logger.Info().
		Str("participant_id", participantID).
		Str("status", string(s)).
		Str("kind", string(p.Kind)).
		Msg("座位状态变化")
	o.commit(EventParticipantStatusChanged, ev)

	if s == presence.Replaced && p.Kind == KindSynthetic && o.phase == PhaseQuestionActive {
		if r := o.currentRound(); r != nil {
			if _, answered := r.Submissions[p.ID]; !answered {
				o.requestMove(r, o.current, p.ID)
			}
		}
	}
	o.maybeGradeEarly()
}

// takeover 宽限期结束：托管玩家接管座位；不允许托管时座位空出
func (o *Orchestrator) takeover(p *Participant) {
	if !o.settings.takeoverOnGrace() || o.deps.Synthetic == nil || p.Kind == KindSynthetic {
		o.logger.Info().Str("participant_id", p.ID).Msg("🪑 座位空出")
		return
	}
	p.Kind = KindSynthetic
	p.TakenOver = true
	o.logger.Info().Str("participant_id", p.ID).Msg("🤖 托管玩家接管座位")
}

func (o *Orchestrator) syntheticAllowed() bool {
	return o.settings.AllowSyntheticFill && o.deps.Synthetic != nil
}

func (o *Orchestrator) sendResync(participantID string, lastSequence uint64) {
	if o.deps.Publisher == nil {
		return
	}
	o.deps.Publisher.SendResync(o.settings.RoomID, participantID, o.resync(lastSequence))
}

func (o *Orchestrator) resync(lastSequence uint64) ResyncResult {
	if evs, ok := o.events.Since(lastSequence); ok {
		return ResyncResult{Events: evs}
	}
	snap := o.snapshot()
	return ResyncResult{Snapshot: &snap}
}

// --- 阶段流转 ---

func (o *Orchestrator) onDeadline(st timer.TimerState) {
	if st.Generation != o.timerGen || st.Phase != string(o.phase) {
		o.logger.Debug().Uint64("generation", st.Generation).Str("phase", st.Phase).Msg("忽略过期的计时回调")
		return
	}

	switch o.phase {
	case PhaseLobby:
		o.enterCountdown()
	case PhaseCountdown:
		o.startRound()
	case PhaseQuestionActive:
		o.finishRound()
	case PhaseQuestionResults:
		if len(o.rounds) < o.settings.Rounds {
			o.startRound()
		} else {
			o.enterSessionResults()
		}
	case PhaseSessionResults:
		o.archive()
	}
}

func (o *Orchestrator) enterLobby() {
	o.setPhase(PhaseLobby)
	dl := o.arm(o.settings.Lobby)
	o.phaseChanged(PhaseChanged{Phase: PhaseLobby, TotalRounds: o.settings.Rounds, DeadlineMs: dl.UnixMilli()})
}

func (o *Orchestrator) enterCountdown() {
	if !o.ensureParticipants() {
		return
	}

	ids, err := o.pickQuestions()
	if err != nil {
		o.infraFault(err, ReasonQuestionSourceFailed)
		return
	}
	o.questionIDs = ids

	o.setPhase(PhaseCountdown)
	dl := o.arm(o.settings.Countdown)
	o.phaseChanged(PhaseChanged{Phase: PhaseCountdown, TotalRounds: o.settings.Rounds, DeadlineMs: dl.UnixMilli()})
}

func (o *Orchestrator) startRound() {
	if !o.ensureParticipants() {
		return
	}

	idx := len(o.rounds)
	qid := o.questionIDs[idx%len(o.questionIDs)]
	var q *question.Question
	err := retry.Do(o.ctx, o.clock, o.settings.Retry, func(ctx context.Context) error {
		var err error
		q, err = o.deps.Questions.ResolveQuestion(ctx, qid)
		return err
	})
	if err != nil {
		o.infraFault(err, ReasonQuestionSourceFailed)
		return
	}
	o.current = q

	o.setPhase(PhaseQuestionActive)
	startedAt := o.clock.Now()
	dl := o.arm(o.settings.RoundTime)
	r := newRound(idx+1, qid, startedAt, dl)
	o.rounds = append(o.rounds, r)

	o.roundCtx, o.moveCancel = context.WithCancel(o.ctx)

	o.phaseChanged(PhaseChanged{
		Phase:       PhaseQuestionActive,
		Round:       r.Index,
		TotalRounds: o.settings.Rounds,
		DeadlineMs:  dl.UnixMilli(),
		QuestionID:  qid,
		Prompt:      q.Prompt,
		Options:     append([]string(nil), q.Options...),
	})

	for _, pid := range o.order {
		if o.participants[pid].Kind == KindSynthetic {
			o.requestMove(r, q, pid)
		}
	}
}

func (o *Orchestrator) finishRound() {
	r := o.currentRound()
	if r == nil || r.Graded {
		return
	}
	o.timer.Cancel(o.id)
	o.moveCancel()

	o.setPhase(PhaseQuestionGrading)
	o.commit(EventPhaseChanged, PhaseChanged{Phase: PhaseQuestionGrading, Round: r.Index, TotalRounds: o.settings.Rounds})

	graded := o.grade(r, o.current)
	o.commit(EventRoundGraded, graded)
	o.logger.Info().Int("round", r.Index).Int("answers", len(r.Submissions)).Msg("✅ 本轮判分完成")

	o.setPhase(PhaseQuestionResults)
	dl := o.arm(o.settings.Results)
	o.phaseChanged(PhaseChanged{
		Phase:       PhaseQuestionResults,
		Round:       r.Index,
		TotalRounds: o.settings.Rounds,
		DeadlineMs:  dl.UnixMilli(),
		Standings:   o.standings(),
	})
}

func (o *Orchestrator) enterSessionResults() {
	if !o.ensureParticipants() {
		return
	}
	o.setPhase(PhaseSessionResults)
	dl := o.arm(o.settings.SessionResults)
	o.phaseChanged(PhaseChanged{
		Phase:       PhaseSessionResults,
		Round:       len(o.rounds),
		TotalRounds: o.settings.Rounds,
		DeadlineMs:  dl.UnixMilli(),
		Standings:   o.standings(),
	})
}

func (o *Orchestrator) archive() {
	o.setPhase(PhaseArchived)
	standings := o.standings()
	o.phaseChanged(PhaseChanged{Phase: PhaseArchived, Round: len(o.rounds), TotalRounds: o.settings.Rounds, Standings: standings})
	o.commit(EventSessionArchived, SessionArchived{Outcome: OutcomeCompleted, Standings: standings})
	o.logger.Info().Uint64("sequence", o.seq).Msg("🏁 对局归档")
}

// abort 中止并立即归档，不产生最终结果
func (o *Orchestrator) abort(reason AbortReason) {
	if o.phase.Terminal() {
		return
	}
	o.timer.Cancel(o.id)
	o.moveCancel()
	o.reason = reason

	o.setPhase(PhaseAborted)
	o.phaseChanged(PhaseChanged{Phase: PhaseAborted, Round: len(o.rounds), TotalRounds: o.settings.Rounds, Reason: reason})
	o.commit(EventSessionArchived, SessionArchived{Outcome: OutcomeAborted, Reason: reason})
	o.logger.Warn().Str("reason", string(reason)).Msg("⛔ 对局中止")
}

// forceAbort panic 之后使用，状态可能不完整
func (o *Orchestrator) forceAbort(reason AbortReason) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			o.reason = reason
			o.setPhase(PhaseAborted)
		}
	}()
	o.abort(reason)
}

func (o *Orchestrator) infraFault(err error, reason AbortReason) {
	if o.ctx.Err() != nil {
		o.abort(ReasonShutdown)
		return
	}
	o.logger.Error().Err(err).Str("reason", string(reason)).Msg("外部依赖不可用")
	o.abort(reason)
}

// ensureParticipants 阶段边界检查：在场人数（不含宽限期）低于下限时尝试托管补位，补不满则中止
func (o *Orchestrator) ensureParticipants() bool {
	held := o.heldSeats()
	if held >= o.settings.MinParticipants {
		return true
	}

	if o.syntheticAllowed() {
		for held < o.settings.MinParticipants && len(o.order) < o.settings.MaxParticipants {
			id := synthetic.NewIdentity()
			p := o.seat(Seat{ID: id.ID, Name: id.Name, Kind: KindSynthetic})
			o.commit(EventParticipantJoined, ParticipantJoined{ParticipantID: p.ID, Name: p.Name, Kind: p.Kind})
			held++
		}
		if held >= o.settings.MinParticipants {
			o.logger.Info().Int("seats", held).Msg("🤖 托管玩家补位")
			return true
		}
	}

	o.logger.Warn().Int("held", held).Int("min", o.settings.MinParticipants).Msg("在场人数不足")
	o.abort(ReasonInsufficientParticipants)
	return false
}

func (o *Orchestrator) heldSeats() int {
	n := 0
	for _, p := range o.participants {
		if p.holdsSeat() {
			n++
		}
	}
	return n
}

// maybeGradeEarly 所有在场座位都已作答时提前判分；有人处于宽限期时等待计时器
func (o *Orchestrator) maybeGradeEarly() {
	if o.phase != PhaseQuestionActive {
		return
	}
	r := o.currentRound()

	eligible := 0
	for _, p := range o.participants {
		_, answered := r.Submissions[p.ID]
		if p.Status == presence.GracePeriod && p.Kind == KindHuman && !answered {
			return
		}
		if !p.holdsSeat() {
			continue
		}
		eligible++
		if !answered && !r.NoMove[p.ID] {
			return
		}
	}
	if eligible == 0 {
		return
	}
	o.finishRound()
}

func (o *Orchestrator) pickQuestions() ([]string, error) {
	if len(o.settings.QuestionIDs) > 0 {
		return o.settings.QuestionIDs, nil
	}
	if o.deps.Picker == nil {
		return nil, errors.New("no question picker configured")
	}

	var ids []string
	err := retry.Do(o.ctx, o.clock, o.settings.Retry, func(ctx context.Context) error {
		var err error
		ids, err = o.deps.Picker.PickQuestions(ctx, o.settings.Category, o.settings.Rounds)
		return err
	})
	if err == nil && len(ids) == 0 {
		err = errors.New("question picker returned no questions")
	}
	return ids, err
}

func (o *Orchestrator) requestMove(r *Round, q *question.Question, participantID string) {
	if o.deps.Synthetic == nil || q == nil {
		r.NoMove[participantID] = true
		return
	}

	ctx := o.roundContext()
	qc := *q
	round, deadline := r.Index, r.Deadline
	go func() {
		var mv synthetic.Move
		err := retry.Do(ctx, o.clock, o.settings.Retry, func(ctx context.Context) error {
			m, err := o.deps.Synthetic.RequestMove(ctx, participantID, &qc, deadline)
			if err != nil {
				if errors.Is(err, synthetic.ErrNoMove) || ctx.Err() != nil {
					return retry.Permanent(err)
				}
				return err
			}
			mv = m
			return nil
		})
		o.cmds.push(func() { o.onSyntheticMove(round, participantID, mv, err) })
	}()
}

func (o *Orchestrator) onSyntheticMove(round int, participantID string, mv synthetic.Move, err error) {
	r := o.currentRound()
	if o.phase != PhaseQuestionActive || r == nil || r.Index != round {
		return
	}

	switch {
	case err == nil:
		if serr := o.submit(participantID, mv.Answer, o.clock.Now(), true); serr != nil {
			o.logger.Debug().Str("participant_id", participantID).Err(serr).Msg("托管答案被拒绝")
		}
	case errors.Is(err, synthetic.ErrNoMove):
		r.NoMove[participantID] = true
		o.maybeGradeEarly()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		o.infraFault(err, ReasonSyntheticFailed)
	}
}

// --- 工具 ---

// roundContext 当前轮的托管请求 context，判分时取消
func (o *Orchestrator) roundContext() context.Context {
	if o.roundCtx == nil {
		return o.ctx
	}
	return o.roundCtx
}

func (o *Orchestrator) currentRound() *Round {
	if len(o.rounds) == 0 {
		return nil
	}
	return o.rounds[len(o.rounds)-1]
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase = p
	o.view.Store(p)
	o.logger.Info().Str("phase", string(p)).Int("round", len(o.rounds)).Msg("阶段切换")
}

func (o *Orchestrator) arm(d time.Duration) time.Time {
	st := o.timer.ArmDeadline(o.id, string(o.phase), d)
	o.timerGen = st.Generation
	o.deadline = st.Deadline
	return st.Deadline
}

func (o *Orchestrator) commit(t EventType, data any) Event {
	o.seq++
	ev := Event{
		SessionID:       o.id,
		Sequence:        o.seq,
		Type:            t,
		Data:            data,
		ServerTimestamp: o.clock.Now(),
	}
	o.events.Append(ev)
	if o.deps.Publisher != nil {
		o.deps.Publisher.Publish(o.settings.RoomID, ev)
	}
	return ev
}

func (o *Orchestrator) phaseChanged(pc PhaseChanged) {
	o.commit(EventPhaseChanged, pc)
	if o.deps.Snapshots != nil {
		o.deps.Snapshots.SaveSnapshot(o.snapshot())
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	s := Snapshot{
		SessionID:   o.id,
		RoomID:      o.settings.RoomID,
		Phase:       o.phase,
		Sequence:    o.seq,
		TotalRounds: o.settings.Rounds,
		CreatedAt:   o.createdAt,
		Reason:      o.reason,
	}
	if !o.phase.Terminal() {
		s.Deadline = o.deadline
	}

	r := o.currentRound()
	if r != nil {
		s.Round = r.Index
		s.QuestionID = r.QuestionID
		if o.phase == PhaseQuestionActive && o.current != nil {
			s.Prompt = o.current.Prompt
			s.Options = append([]string(nil), o.current.Options...)
		}
	}

	s.Participants = make([]ParticipantView, 0, len(o.order))
	for _, pid := range o.order {
		p := o.participants[pid]
		v := ParticipantView{
			ID:     p.ID,
			Name:   p.Name,
			Kind:   p.Kind,
			Status: string(p.Status),
			Score:  p.Score,
			Stats:  p.Stats,
		}
		if r != nil {
			_, v.Answered = r.Submissions[pid]
		}
		s.Participants = append(s.Participants, v)
	}
	return s
}

func (o *Orchestrator) buildSummary() Summary {
	sum := Summary{
		SessionID: o.id,
		RoomID:    o.settings.RoomID,
		Outcome:   OutcomeCompleted,
		Reason:    o.reason,
		Sequence:  o.seq,
	}
	if o.phase == PhaseAborted {
		sum.Outcome = OutcomeAborted
	} else {
		sum.Standings = o.standings()
	}
	return sum
}
