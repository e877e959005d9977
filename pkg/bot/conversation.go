package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/Anmol9893/botservice/pkg/dialog"
	"github.com/Anmol9893/botservice/pkg/events"
	"github.com/Anmol9893/botservice/pkg/state"
)

// Reference is how to reach a conversation outside of a turn.
type Reference struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	BotID          string    `json:"bot_id,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	ReplyTo        string    `json:"reply_to,omitempty"`
	Locale         string    `json:"locale,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Conversation is a read-only view of a conversation's persisted state.
type Conversation struct {
	ID      string               `json:"id"`
	Stack   []*dialog.Instance   `json:"stack"`
	History []dialog.StackRecord `json:"history,omitempty"`
	// Pending names an interruption awaiting the user's confirmation.
	Pending   string     `json:"pending,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
	Reference *Reference `json:"reference,omitempty"`
}

// remember buffers the conversation reference for this turn. A turn without
// a reply route keeps the previously stored one.
func (b *Bot) remember(ctx context.Context, batch *state.Batch, a dialog.Activity) error {
	ref, _, err := referenceProp.Get(ctx, batch, a.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation reference: %w", err)
	}
	ref.ConversationID = a.ConversationID
	ref.UserID = a.UserID
	if a.RecipientID != "" {
		ref.BotID = a.RecipientID
	}
	if a.ChannelID != "" {
		ref.ChannelID = a.ChannelID
	}
	if a.ReplyTo != "" {
		ref.ReplyTo = a.ReplyTo
	}
	if a.Locale != "" {
		ref.Locale = a.Locale
	}
	ref.LastActivityAt = a.Timestamp
	return referenceProp.Set(batch, a.ConversationID, ref)
}

// Reference returns the stored reference for a conversation.
func (b *Bot) Reference(ctx context.Context, conversationID string) (Reference, bool, error) {
	batch := state.NewBatch(b.store)
	defer batch.Discard()
	return referenceProp.Get(ctx, batch, conversationID)
}

// Conversation loads the persisted state of a conversation. It returns
// state.ErrNotFound when nothing has been stored for it.
func (b *Bot) Conversation(ctx context.Context, conversationID string) (*Conversation, error) {
	batch := state.NewBatch(b.store)
	defer batch.Discard()

	st, stFound, err := stateProp.Get(ctx, batch, conversationID)
	if err != nil {
		return nil, err
	}
	ref, refFound, err := referenceProp.Get(ctx, batch, conversationID)
	if err != nil {
		return nil, err
	}
	if !stFound && !refFound {
		return nil, fmt.Errorf("conversation %q: %w", conversationID, state.ErrNotFound)
	}

	conv := &Conversation{ID: conversationID, Stack: []*dialog.Instance{}}
	if st != nil {
		if st.Stack != nil {
			conv.Stack = st.Stack.Frames()
		}
		conv.History = st.History
		conv.Pending = st.Pending
		conv.UpdatedAt = st.UpdatedAt
	}
	if refFound {
		conv.Reference = &ref
	}
	return conv, nil
}

// Reset discards the dialog stack of a conversation. User profile data and
// the conversation reference are kept.
func (b *Bot) Reset(ctx context.Context, conversationID string) error {
	if err := b.store.Delete(ctx, stateProp.Key(conversationID)); err != nil {
		return fmt.Errorf("reset conversation %q: %w", conversationID, err)
	}
	b.emit(ctx, events.ConversationReset, conversationID, nil)
	return nil
}
