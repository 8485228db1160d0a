package models

import "time"

// ConversationTurn is one query/response exchange. Turns are append-only; a
// conversation is the set of turns sharing a ConversationID, ordered by timestamp.
type ConversationTurn struct {
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Query          string    `json:"query" db:"query"`
	Response       string    `json:"response" db:"response"`
	Model          string    `json:"model" db:"model"`
	Sources        []string  `json:"sources"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}

// ConversationSummary describes one conversation for listings, ordered by the
// timestamp of its first turn, newest first.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	FirstQuery     string    `json:"first_query"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	Model          string    `json:"model"`
}
