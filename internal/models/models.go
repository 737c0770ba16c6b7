package models

import "time"

// Conversation roles as stored and as sent to the LLM.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// VerseRecord is a single verse of the corpus. Identity is (Book, Chapter, Verse).
type VerseRecord struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// ContextUnit is a verse together with the concatenated text of its surrounding
// verses. The window text is what gets embedded; the center verse is what gets cited.
type ContextUnit struct {
	Center      VerseRecord
	WindowText  string
	EmbeddingID string
}

// IndexedVector is one entry written to the vector store.
type IndexedVector struct {
	EmbeddingID string
	Embedding   []float32
	Metadata    map[string]string
}

// VectorMatch is a raw similarity match returned by the vector store.
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// RetrievedVerse is a retrieval result mapped back to verse identity,
// returned to the caller for citation display.
type RetrievedVerse struct {
	Book    string  `json:"book"`
	Chapter int     `json:"chapter"`
	Verse   int     `json:"verse"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ConversationTurn is a persisted message in a conversation. The core pipeline
// only reads turns; writing them is the conversation store's job.
type ConversationTurn struct {
	Role            string           `json:"role"`
	Content         string           `json:"content"`
	Timestamp       time.Time        `json:"timestamp"`
	RetrievedVerses []RetrievedVerse `json:"retrieved_verses,omitempty"`
}

// RewrittenQuery is the analyzer's decision for one request. SearchText is only
// meaningful when NeedsRetrieval is true, and must be interpretable without any
// conversation history.
type RewrittenQuery struct {
	NeedsRetrieval bool   `json:"needs_retrieval"`
	SearchText     string `json:"rewritten_query"`
	Reasoning      string `json:"reasoning,omitempty"`
}

// PromptMessage is one message of a generation prompt.
type PromptMessage struct {
	Role    string
	Content string
}
