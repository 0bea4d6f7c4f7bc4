package models

// InboxEvent is pushed to inbox websocket connections.
type InboxEvent struct {
	Type          string         `json:"type"`
	Conversations []Conversation `json:"conversations,omitempty"`
	Message       *Message       `json:"message,omitempty"`
}
