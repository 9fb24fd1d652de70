package session

import (
	"sort"
	"time"

	"github.com/palemoky/quiz-rooms/internal/config"
	"github.com/palemoky/quiz-rooms/internal/game/presence"
	"github.com/palemoky/quiz-rooms/internal/game/question"
)

// Scoring 计分参数
type Scoring struct {
	Base       int
	SpeedBonus int
	Limit      time.Duration
}

// Score 计算一个正确答案的得分。
// rank 为按服务器收到时间（同时间按提交顺序）排序后的名次，从 0 开始；
// 末项保证名次靠前的答案严格得分更高。
func (s Scoring) Score(latency time.Duration, rank, correctCount int) int {
	bonus := 0
	if s.Limit > 0 && s.SpeedBonus > 0 {
		remaining := min(max(s.Limit-latency, 0), s.Limit)
		bonus = int(int64(s.SpeedBonus) * int64(remaining) / int64(s.Limit))
	}
	return s.Base + bonus + (correctCount - rank)
}

// grade 判分；只由 actor 调用，每轮一次
func (o *Orchestrator) grade(r *Round, q *question.Question) RoundGraded {
	r.Graded = true

	var correct []*Submission
	verdict := make(map[string]bool, len(r.Submissions))
	for pid, sub := range r.Submissions {
		ok := o.deps.Questions.GradeAnswer(q, sub.Answer)
		verdict[pid] = ok
		if ok {
			correct = append(correct, sub)
		}
	}
	sort.Slice(correct, func(i, j int) bool {
		if !correct[i].ReceivedAt.Equal(correct[j].ReceivedAt) {
			return correct[i].ReceivedAt.Before(correct[j].ReceivedAt)
		}
		return correct[i].Order < correct[j].Order
	})

	scoring := Scoring{Base: o.settings.BaseScore, SpeedBonus: o.settings.SpeedBonus, Limit: o.settings.RoundTime}
	delta := make(map[string]int, len(correct))
	for rank, sub := range correct {
		delta[sub.ParticipantID] = scoring.Score(sub.ReceivedAt.Sub(r.StartedAt), rank, len(correct))
	}

	out := RoundGraded{
		Round:         r.Index,
		QuestionID:    r.QuestionID,
		CorrectAnswer: q.CorrectAnswer,
	}
	for _, pid := range o.order {
		p := o.participants[pid]
		sub, answered := r.Submissions[pid]

		// 已空出的座位（被接管但没有托管玩家）不再参与
		if !answered && p.Status == presence.Replaced && p.Kind == KindHuman {
			continue
		}

		rec := AnswerRecord{Round: r.Index}
		res := RoundResult{ParticipantID: pid, Synthetic: p.Kind == KindSynthetic}
		if answered {
			rec.Answer, rec.ReceivedAt = sub.Answer, sub.ReceivedAt
			rec.Correct, rec.Delta = verdict[pid], delta[pid]
			res.Answer, res.Correct, res.Delta = sub.Answer, verdict[pid], delta[pid]
			p.Stats.Answered++
			if rec.Correct {
				p.Stats.Correct++
			}
		} else {
			rec.NoAnswer, res.NoAnswer = true, true
		}

		if !answered && p.Status == presence.GracePeriod && o.settings.GracePolicy == config.GracePolicyExclude {
			rec.Excluded, res.Excluded = true, true
		} else {
			p.Stats.RoundsPlayed++
		}

		p.Score += rec.Delta
		p.Answers = append(p.Answers, rec)
		res.Score = p.Score
		out.Results = append(out.Results, res)
	}
	return out
}

// standings 当前排名：分数降序，同分按答对数、再按入座顺序
func (o *Orchestrator) standings() []Standing {
	out := make([]Standing, 0, len(o.order))
	for _, pid := range o.order {
		p := o.participants[pid]
		out = append(out, Standing{ParticipantID: p.ID, Name: p.Name, Kind: p.Kind, Score: p.Score, Stats: p.Stats})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Stats.Correct > out[j].Stats.Correct
	})
	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].Score == out[i-1].Score && out[i].Stats.Correct == out[i-1].Stats.Correct {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}
