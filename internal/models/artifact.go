package models

import "time"

// ArtifactStatus tracks an archive attempt's lifecycle.
type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactInProgress ArtifactStatus = "in_progress"
	ArtifactSuccess    ArtifactStatus = "success"
	ArtifactFailed     ArtifactStatus = "failed"
	ArtifactSkipped    ArtifactStatus = "skipped"
)

// Sentinel exit codes recorded on finalized artifacts.
const (
	// ExitArchiverFailed is recorded when an archiver invocation errors or panics.
	ExitArchiverFailed = 1
	// ExitArchiverNotRegistered is recorded when no backend matches the
	// requested archiver name. Configuration error, never retried.
	ExitArchiverNotRegistered = 127
	// ExitURLNotFound is recorded when the liveness probe reports a dead URL.
	ExitURLNotFound = 404
)

// ArchiveArtifact records one (item, archiver) execution. At most one row
// exists per pair; status transitions happen in place.
type ArchiveArtifact struct {
	ID            string         `json:"id" badgerhold:"key"`
	ItemID        string         `json:"item_id"`
	Archiver      string         `json:"archiver"`
	Status        ArtifactStatus `json:"status"`
	TaskID        string         `json:"task_id,omitempty"`
	ExitCode      *int           `json:"exit_code,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	SavedPath     string         `json:"saved_path,omitempty"`
	SizeBytes     int64          `json:"size_bytes"`
	StorageBucket string         `json:"storage_bucket,omitempty"`
	StoragePath   string         `json:"storage_path,omitempty"`

	UploadedToStorage  bool            `json:"uploaded_to_storage"`
	AllUploadsSucceeded bool           `json:"all_uploads_succeeded"`
	StorageUploads     []StorageUpload `json:"storage_uploads,omitempty"`

	LocalFileDeleted   bool       `json:"local_file_deleted"`
	LocalFileDeletedAt *time.Time `json:"local_file_deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StorageUpload records one provider's copy of a compressed artifact.
type StorageUpload struct {
	Provider         string    `json:"provider"`
	URI              string    `json:"uri"`
	SizeBytes        int64     `json:"size"`
	CompressionRatio float64   `json:"ratio"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// IsTerminal reports whether the artifact has reached a final state.
func (s ArtifactStatus) IsTerminal() bool {
	return s == ArtifactSuccess || s == ArtifactFailed || s == ArtifactSkipped
}

// ExitCodeValue returns the recorded exit code, or -1 when none was set.
func (a *ArchiveArtifact) ExitCodeValue() int {
	if a.ExitCode == nil {
		return -1
	}
	return *a.ExitCode
}
