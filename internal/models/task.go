package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the structure stored in the durable queue.
// Keep it simple - just enough to route the task.
type QueueMessage struct {
	TaskID  string          `json:"task_id"`
	Type    string          `json:"type"`    // Task type for handler routing
	Payload json.RawMessage `json:"payload"` // Task-specific data (passed through)
}

// BatchItem is one (item, archiver) unit of work inside a batch task.
type BatchItem struct {
	ItemID       string `json:"item_id"`
	URL          string `json:"url"`
	ArtifactID   string `json:"artifact_id"`
	Archiver     string `json:"archiver"`
	RewrittenURL string `json:"rewritten_url,omitempty"`
}

// BatchTask groups the batch items created by one enqueue call.
// Ephemeral: never persisted, owned by the queue that carries it.
type BatchTask struct {
	TaskID string      `json:"task_id"`
	Items  []BatchItem `json:"items"`
}

// SummarizeTask asks the summarization worker to summarize one item.
type SummarizeTask struct {
	ArtifactID string `json:"artifact_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// UploadTask moves one local artifact into blob storage.
type UploadTask struct {
	ItemID     string `json:"item_id"`
	Archiver   string `json:"archiver"`
	ArtifactID string `json:"artifact_id"`
	LocalPath  string `json:"local_path"`
}

// CleanupTask reclaims one local artifact copy after its retention window.
type CleanupTask struct {
	ArtifactID   string    `json:"artifact_id"`
	LocalPath    string    `json:"local_path"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Task types routed over the durable queue.
const (
	TaskTypeArchiveBatch = "archive_batch"
	TaskTypeSummarize    = "summarize"
	TaskTypeUpload       = "upload"
	TaskTypeCleanup      = "cleanup"
)
