package domain

import "time"

type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	MediaURL  string // optional reference to an attachment (URL or path)
	Timestamp time.Time
}

type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	MediaURL string // optional media reference, honored by channels that can send media
	Format   string // text | markdown
}

// Reaction is an emoji reaction to a previously delivered message.
// TargetAuthorUUID is required by Signal for reactions in group chats.
type Reaction struct {
	Channel          string
	Target           string
	MessageID        string
	Emoji            string
	TargetAuthorUUID string
}
