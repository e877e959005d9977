package channel

import (
	"context"

	"github.com/pitabwire/frame/data"
	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"
)

// DeadLetter is an outbound message that exhausted its retries.
type DeadLetter struct {
	data.BaseModel

	ConversationID string `gorm:"type:varchar(255);not null;index:idx_bdl_conversation" json:"conversation_id"`
	MessageID      string `gorm:"type:varchar(50);not null"                             json:"message_id"`
	URL            string `gorm:"type:varchar(2048);not null"                           json:"url"`
	Payload        string `gorm:"type:text;not null"                                    json:"payload"`
	LastError      string `gorm:"type:text"                                             json:"last_error"`
	Attempts       int    `gorm:"default:0"                                             json:"attempts"`
}

func (DeadLetter) TableName() string { return "bot_dead_letters" }

// DeadLetterSink keeps messages that could not be delivered.
type DeadLetterSink interface {
	CreateDeadLetter(ctx context.Context, dl *DeadLetter) error
}

// Repository stores dead letters in the service datastore.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a dead letter repository over p.
func NewRepository(p pool.Pool) *Repository {
	return &Repository{pool: p}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates the dead letter table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db(ctx, false).AutoMigrate(&DeadLetter{})
}

// CreateDeadLetter persists dl.
func (r *Repository) CreateDeadLetter(ctx context.Context, dl *DeadLetter) error {
	return r.db(ctx, false).Create(dl).Error
}

// ListDeadLetters returns the dead letters of a conversation, newest first.
func (r *Repository) ListDeadLetters(ctx context.Context, conversationID string, limit int) ([]DeadLetter, error) {
	var letters []DeadLetter
	q := r.db(ctx, true).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&letters).Error
	return letters, err
}
