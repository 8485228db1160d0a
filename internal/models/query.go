package models

import "fmt"

// QueryRequest is a user question against the ingested corpus.
type QueryRequest struct {
	Query          string `json:"query"`
	Model          string `json:"model,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Validate ensures the request has a query and applies the default model.
func (q *QueryRequest) Validate(defaultModel string) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Model == "" {
		q.Model = defaultModel
	}
	return nil
}

// QueryResponse is the answer to a QueryRequest with its source attribution.
type QueryResponse struct {
	Response       string   `json:"response"`
	Sources        []string `json:"sources"`
	ConversationID string   `json:"conversation_id"`
}

// RetrievedChunk is a single retrieval hit. Score is the L2 distance between
// the query embedding and the chunk embedding; lower is more relevant.
type RetrievedChunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}
