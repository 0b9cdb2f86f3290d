package store

// MessageType tags the transport payload kind of a logged message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypePhoto    MessageType = "photo"
	MessageTypeDocument MessageType = "document"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeOther    MessageType = "other"
)

// ChatMessage is one row of the append-only inbound message log. Edits insert
// a new row with the next EditVersion; rows are never updated in place.
type ChatMessage struct {
	ID               int64
	ChatID           int64
	MessageID        int64
	EditVersion      int32
	SenderID         int64
	SenderUsername   string
	SenderName       string
	Text             string
	IsAccountant     bool
	ReplyToMessageID *int64
	MessageType      MessageType
	SentTs           int64 // transport timestamp
	CreatedTs        int64
}

type FindChatMessage struct {
	ChatID    *int64
	MessageID *int64
	SenderID  *int64
	Limit     *int
}
