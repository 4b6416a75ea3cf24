package domain

import "time"

// MaxMessageLen bounds the chat message body. Enforcement lives at the
// calling boundary; the store treats the body as opaque text.
const MaxMessageLen = 500

// ChatMessage is one entry in a trade's append-only chat / audit trail.
// Messages are never mutated after creation.
type ChatMessage struct {
	ID        string
	TradeID   string
	SenderID  int64
	Body      string
	IsSystem  bool
	CreatedAt time.Time
}
