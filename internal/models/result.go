package models

// ArchiveResult is the outcome of one archiver invocation.
// Metadata, when present, carries backend-specific structured content
// (e.g. the readable extractor's article text).
type ArchiveResult struct {
	Success   bool          `json:"success"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	SavedPath string        `json:"saved_path,omitempty"`
	SizeBytes int64         `json:"size_bytes"`
	Metadata  *ItemMetadata `json:"metadata,omitempty"`
}

// UploadResult is the outcome of one file-storage upload.
type UploadResult struct {
	Success          bool    `json:"success"`
	URI              string  `json:"uri,omitempty"`
	OriginalSize     int64   `json:"original_size"`
	StoredSize       int64   `json:"stored_size"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	Error            string  `json:"error,omitempty"`
}
