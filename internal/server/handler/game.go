package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/quiz-rooms/internal/apperrors"
	"github.com/palemoky/quiz-rooms/internal/game/room"
	"github.com/palemoky/quiz-rooms/internal/game/session"
	"github.com/palemoky/quiz-rooms/internal/protocol"
	"github.com/palemoky/quiz-rooms/internal/protocol/codec"
	"github.com/palemoky/quiz-rooms/internal/types"
)

const snapshotLookupTimeout = 2 * time.Second

// handleSubmitAnswer 处理提交答案。拒绝原因通过 answer_result 返回，其它错误走 error
func (h *Handler) handleSubmitAnswer(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.SubmitAnswerPayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	r := h.rooms.RoomOf(client.GetID())
	if r == nil {
		sendError(client, apperrors.ErrNotInRoom)
		return
	}
	o := r.Active()
	if o == nil {
		client.SendMessage(answerResult(false, apperrors.ErrNotAccepting.Message, 0))
		return
	}

	round, err := o.Submit(client.GetID(), payload.Answer, time.UnixMilli(payload.ClientTimestamp))
	switch {
	case err == nil:
		client.SendMessage(answerResult(true, "", round))
	case errors.Is(err, apperrors.ErrTooLate),
		errors.Is(err, apperrors.ErrAlreadyAnswered),
		errors.Is(err, apperrors.ErrNotAccepting):
		client.SendMessage(answerResult(false, err.Error(), round))
	default:
		sendError(client, err)
	}
}

func answerResult(accepted bool, reason string, round int) *protocol.Message {
	return codec.MustNewMessage(protocol.MsgAnswerResult, protocol.AnswerResultPayload{
		Accepted: accepted,
		Reason:   reason,
		Round:    round,
	})
}

// handleResync 处理补发请求
func (h *Handler) handleResync(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.ResyncPayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	r := h.rooms.RoomOf(client.GetID())
	if r == nil {
		sendError(client, apperrors.ErrNotInRoom)
		return
	}
	h.sendResync(client, r, payload.LastSequence)
}

// sendResync 当前对局的补发；间歇期则发送上一局的快照（如有）
func (h *Handler) sendResync(client types.ClientInterface, r *room.Room, lastSequence uint64) {
	var res session.ResyncResult
	if o := r.Active(); o != nil {
		res = o.RequestResync(client.GetID(), lastSequence)
	} else if h.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotLookupTimeout)
		snap, err := h.snapshots.LatestSnapshot(ctx, r.ID())
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("room_id", r.ID()).Msg("读取对局快照失败")
		}
		if snap == nil {
			return
		}
		res.Snapshot = snap
	} else {
		return
	}

	wire, err := res.Wire()
	if err != nil {
		sendError(client, err)
		return
	}
	client.SendMessage(codec.MustNewMessage(protocol.MsgResyncResult, wire))
}
