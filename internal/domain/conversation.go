package domain

import "time"

// Storage tuning constants. These form the on-disk contract between the
// writer, compactor and reader; changing them against an existing dataset
// will corrupt pagination and archive bookkeeping.
const (
	// BatchSize is the maximum number of messages a hot-tier batch accepts.
	BatchSize = 20

	// BatchesToKeep is the number of most recent batches that are never
	// eligible for archival.
	BatchesToKeep = 3

	// ArchiveThreshold is the hot message count at which a conversation
	// becomes eligible for compaction.
	ArchiveThreshold = BatchesToKeep * BatchSize

	// PageSize is the number of batches a reader fetches per hot-tier page.
	PageSize = 10

	// CacheTTL bounds how long a cached archive blob is served before the
	// cache treats it as a miss. Blobs are immutable, so this only limits
	// local storage growth.
	CacheTTL = time.Hour
)

type ParticipantDisplay struct {
	Name     string `bson:"name" json:"name"`
	PhotoURL string `bson:"photo_url" json:"photoUrl"`
}

type LastMessage struct {
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Conversation is the denormalized root document for a two-party chat.
type Conversation struct {
	ID                   string                        `bson:"_id" json:"id"`
	Participants         []string                      `bson:"participants" json:"participants"`
	ParticipantDisplay   map[string]ParticipantDisplay `bson:"participant_display" json:"participantDisplay"`
	LastMessage          *LastMessage                  `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	UnreadCounts         map[string]int64              `bson:"unread_counts" json:"unreadCounts"`
	CurrentBatchID       string                        `bson:"current_batch_id,omitempty" json:"currentBatchId,omitempty"`
	MessageCount         int64                         `bson:"message_count" json:"messageCount"`
	ArchivedMessageCount int64                         `bson:"archived_message_count" json:"archivedMessageCount"`
	Archives             []ArchiveMetadata             `bson:"archives" json:"archives"`
	CreatedAt            time.Time                     `bson:"created_at" json:"createdAt"`
}

// HotMessageCount is the number of messages still held in hot-tier batches.
func (c *Conversation) HotMessageCount() int64 {
	return c.MessageCount - c.ArchivedMessageCount
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
