package service

import "errors"

var (
	// ErrWriteFailed wraps a failed append transaction. The writer does not
	// retry; the caller decides what to do with the unsent message.
	ErrWriteFailed = errors.New("message write failed")

	// ErrUploadFailed wraps a failed archive upload. No metadata has been
	// mutated when it is returned, so the compaction is safe to retry.
	ErrUploadFailed = errors.New("archive upload failed")

	ErrEmptyMessage   = errors.New("message text is empty")
	ErrNotParticipant = errors.New("sender is not a conversation participant")
)

type CompactionStatus string

const (
	CompactionSkipped CompactionStatus = "skipped"
	CompactionSuccess CompactionStatus = "success"
)

type CompactionResult struct {
	Status     CompactionStatus `json:"status"`
	MovedCount int64            `json:"movedCount"`
}
