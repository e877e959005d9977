// Package handler hosts the bot over connect RPC and plain REST.
package handler

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/Anmol9893/botservice/internal/turn/turnv1"
	"github.com/Anmol9893/botservice/pkg/bot"
	"github.com/Anmol9893/botservice/pkg/channel"
	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/state"
)

var _ turnv1.TurnServiceHandler = (*TurnHandler)(nil)

// TurnHandler implements turnv1.TurnServiceHandler and the REST endpoints.
// It delivers at most one turn per conversation to the bot at a time.
type TurnHandler struct {
	bot       *bot.Bot
	deliverer *channel.Deliverer
	pool      workerpool.WorkerPool
	locks     *conversationLocks
}

// NewTurnHandler creates a handler. deliverer and pool may be nil; without
// a deliverer every turn is answered synchronously.
func NewTurnHandler(b *bot.Bot, deliverer *channel.Deliverer, pool workerpool.WorkerPool) *TurnHandler {
	return &TurnHandler{
		bot:       b,
		deliverer: deliverer,
		pool:      pool,
		locks:     newConversationLocks(),
	}
}

// process runs one turn under the conversation lock.
func (h *TurnHandler) process(ctx context.Context, a dialog.Activity) (*bot.TurnResult, error) {
	if a.ConversationID == "" {
		a.ConversationID = xid.New().String()
	}
	if a.ReplyTo != "" {
		if h.deliverer == nil {
			return nil, fmt.Errorf("%w: reply_to is not supported", bot.ErrInvalidActivity)
		}
		if err := h.deliverer.Validate(a.ReplyTo); err != nil {
			return nil, fmt.Errorf("%w: %w", bot.ErrInvalidActivity, err)
		}
	}

	unlock := h.locks.lock(a.ConversationID)
	defer unlock()
	return h.bot.ProcessTurn(ctx, a)
}

// processAsync runs the turn in the background and pushes the replies to
// the activity's reply-to endpoint.
func (h *TurnHandler) processAsync(ctx context.Context, a dialog.Activity) error {
	ctx = context.WithoutCancel(ctx)
	job := func() {
		res, err := h.process(ctx, a)
		if err != nil {
			util.Log(ctx).WithError(err).
				WithField("conversation_id", a.ConversationID).
				Error("turn handler: async turn")
			return
		}
		if len(res.Replies) == 0 {
			return
		}
		h.deliverer.Deliver(ctx, a.ReplyTo, channel.NewOutbound(res.ConversationID, res.Replies))
	}
	if h.pool != nil {
		return h.pool.Submit(ctx, job)
	}
	go job()
	return nil
}

func (h *TurnHandler) ProcessTurn(ctx context.Context, req *connect.Request[turnv1.ProcessTurnRequest]) (*connect.Response[turnv1.ProcessTurnResponse], error) {
	res, err := h.process(ctx, req.Msg.Activity)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&turnv1.ProcessTurnResponse{
		ConversationID: res.ConversationID,
		Replies:        res.Replies,
		Stack:          res.Stack,
		Action:         string(res.Outcome.Action),
		Failed:         res.Failed,
	}), nil
}

func (h *TurnHandler) GetConversation(ctx context.Context, req *connect.Request[turnv1.GetConversationRequest]) (*connect.Response[turnv1.GetConversationResponse], error) {
	if req.Msg.ConversationID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("conversation_id is required"))
	}
	conv, err := h.bot.Conversation(ctx, req.Msg.ConversationID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&turnv1.GetConversationResponse{Conversation: conv}), nil
}

func (h *TurnHandler) ResetConversation(ctx context.Context, req *connect.Request[turnv1.ResetConversationRequest]) (*connect.Response[turnv1.ResetConversationResponse], error) {
	id := req.Msg.ConversationID
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("conversation_id is required"))
	}
	unlock := h.locks.lock(id)
	defer unlock()
	if err := h.bot.Reset(ctx, id); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&turnv1.ResetConversationResponse{ConversationID: id}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, bot.ErrInvalidActivity), errors.Is(err, state.ErrInvalidKey):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, state.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
