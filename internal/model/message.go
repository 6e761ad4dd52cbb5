package model

import "time"

// MaxMessageLength bounds message content in characters.
const MaxMessageLength = 2000

// Message is a row of the `messages` table.  IsRead only ever moves from
// false to true and is only flipped on behalf of the recipient.
type Message struct {
    ID             uint64    `json:"id"`              // messages.id
    ConversationID uint64    `json:"conversation_id"` // messages.conversation_id
    SenderID       uint64    `json:"sender_id"`       // messages.sender_id
    Content        string    `json:"content"`         // messages.content
    IsRead         bool      `json:"is_read"`         // messages.is_read
    CreatedAt      time.Time `json:"created_at"`      // messages.created_at (microsecond precision)
}
