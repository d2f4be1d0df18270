package sqlite

const schemaSQL = `
-- Archived items
-- One row per logical URL under archival. URL is unique; item id is the
-- join key for artifacts, metadata and summaries.
CREATE TABLE IF NOT EXISTS archived_items (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	name TEXT,
	total_size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Archive artifacts
-- One row per (item, archiver) pair; status transitions happen in place.
CREATE TABLE IF NOT EXISTS archive_artifacts (
	id TEXT PRIMARY KEY,
	archived_item_id TEXT NOT NULL REFERENCES archived_items(id) ON DELETE CASCADE,
	archiver TEXT NOT NULL,
	status TEXT NOT NULL,
	task_id TEXT,
	exit_code INTEGER,
	last_error TEXT,
	saved_path TEXT,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	gcs_bucket TEXT,
	gcs_path TEXT,
	uploaded_to_storage INTEGER NOT NULL DEFAULT 0,
	all_uploads_succeeded INTEGER NOT NULL DEFAULT 0,
	storage_uploads TEXT,
	local_file_deleted INTEGER NOT NULL DEFAULT 0,
	local_file_deleted_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(archived_item_id, archiver)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_status ON archive_artifacts(status);
CREATE INDEX IF NOT EXISTS idx_artifacts_item ON archive_artifacts(archived_item_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_upload ON archive_artifacts(status, uploaded_to_storage);

-- Extracted content metadata (readable text, title, byline)
CREATE TABLE IF NOT EXISTS item_metadata (
	archived_item_id TEXT NOT NULL REFERENCES archived_items(id) ON DELETE CASCADE,
	archiver TEXT NOT NULL,
	title TEXT,
	byline TEXT,
	site_name TEXT,
	excerpt TEXT,
	text TEXT,
	language TEXT,
	word_count INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (archived_item_id, archiver)
);

-- Item summaries
CREATE TABLE IF NOT EXISTS item_summaries (
	archived_item_id TEXT PRIMARY KEY REFERENCES archived_items(id) ON DELETE CASCADE,
	summary TEXT NOT NULL,
	model TEXT,
	reason TEXT,
	created_at INTEGER NOT NULL
);

-- FTS5 index for item full-text search
CREATE VIRTUAL TABLE IF NOT EXISTS archived_items_fts USING fts5(
	name,
	url,
	content='archived_items',
	content_rowid='rowid'
);

-- Triggers to keep the FTS index in sync. External-content tables are
-- maintained with the special 'delete' command, not UPDATE/DELETE.
CREATE TRIGGER IF NOT EXISTS archived_items_fts_insert AFTER INSERT ON archived_items BEGIN
	INSERT INTO archived_items_fts(rowid, name, url)
	VALUES (new.rowid, new.name, new.url);
END;

DROP TRIGGER IF EXISTS archived_items_fts_update;
CREATE TRIGGER archived_items_fts_update AFTER UPDATE ON archived_items BEGIN
	INSERT INTO archived_items_fts(archived_items_fts, rowid, name, url)
	VALUES ('delete', old.rowid, old.name, old.url);
	INSERT INTO archived_items_fts(rowid, name, url)
	VALUES (new.rowid, new.name, new.url);
END;

DROP TRIGGER IF EXISTS archived_items_fts_delete;
CREATE TRIGGER archived_items_fts_delete AFTER DELETE ON archived_items BEGIN
	INSERT INTO archived_items_fts(archived_items_fts, rowid, name, url)
	VALUES ('delete', old.rowid, old.name, old.url);
END;
`
