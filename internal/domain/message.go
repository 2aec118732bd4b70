package domain

import "time"

// Message is immutable once written; there is no edit or delete.
// JSON tags match the archive blob contract, bson tags the hot-tier schema.
type Message struct {
	SenderID   string    `bson:"sender_id" json:"senderId"`
	SenderName string    `bson:"sender_name" json:"senderName"`
	Text       string    `bson:"text" json:"text"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	Read       bool      `bson:"read" json:"read"`
}

// Batch is the hot-tier storage unit: an append-only run of at most
// BatchSize messages in send order. Once a batch is referenced by an
// archive it is deleted from the hot tier and never mutated again.
type Batch struct {
	ID             string    `bson:"_id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"-"`
	Messages       []Message `bson:"messages" json:"messages"`
	StartTime      time.Time `bson:"start_time" json:"startTime"`
	EndTime        time.Time `bson:"end_time" json:"endTime"`
}

// ArchiveMetadata points at one immutable cold-storage object. Entries are
// append-only on the conversation and are never removed.
type ArchiveMetadata struct {
	Path            string    `bson:"path" json:"path"`
	Count           int64     `bson:"count" json:"count"`
	OldestTimestamp time.Time `bson:"oldest_timestamp" json:"oldestTimestamp"`
	NewestTimestamp time.Time `bson:"newest_timestamp" json:"newestTimestamp"`
	CreatedAt       time.Time `bson:"created_at" json:"createdAt"`
}

// ArchiveBlob is the cold-store object shape. The aggregate fields are
// redundant with the contained batches so a blob can be validated without
// re-scanning every message.
type ArchiveBlob struct {
	ConversationID  string    `json:"conversationId"`
	Batches         []Batch   `json:"batches"`
	TotalMessages   int64     `json:"totalMessages"`
	OldestTimestamp time.Time `json:"oldestTimestamp"`
	NewestTimestamp time.Time `json:"newestTimestamp"`
	ArchivedAt      time.Time `json:"archivedAt"`
}
