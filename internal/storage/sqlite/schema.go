package sqlite

import "github.com/scrypster/forumlens/internal/storage"

// Schema is the SQLite schema. schema_info is created last and doubles as
// the probe table: its presence means every earlier statement was applied.
var Schema = storage.SchemaDefinition{
	ProbeQuery: "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?",
	ProbeTable: "schema_info",
	Statements: []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE COLLATE NOCASE,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,

		// user_id is not a foreign key: accounts are owned by the auth layer
		// and may be provisioned after their uploads.
		`CREATE TABLE IF NOT EXISTS uploads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			readable_name TEXT NOT NULL DEFAULT '',
			comment TEXT,
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived', 'deleted')),
			records_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			status_changed_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_user_status ON uploads(user_id, status)`,

		`CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			forum TEXT NOT NULL,
			post_type TEXT,
			username TEXT,
			original_title TEXT NOT NULL DEFAULT '',
			original_post TEXT NOT NULL DEFAULT '',
			post_url TEXT,
			date_posted TEXT,
			cluster INTEGER,
			cluster_label TEXT,
			llm_cluster_name TEXT,
			umap_1 REAL,
			umap_2 REAL,
			umap_3 REAL,
			upload_id INTEGER NOT NULL REFERENCES uploads(id) ON DELETE CASCADE,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_forum ON posts(forum)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_upload ON posts(upload_id)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_cluster ON posts(cluster)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_title ON posts(original_title)`,

		`CREATE TABLE IF NOT EXISTS ai_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			question_text TEXT NOT NULL,
			confidence_score REAL,
			model_version TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_questions_post ON ai_questions(post_id)`,

		`CREATE TABLE IF NOT EXISTS ai_categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			category_type TEXT NOT NULL,
			category_value TEXT NOT NULL,
			confidence_score REAL,
			model_version TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_categories_post ON ai_categories(post_id)`,

		`CREATE TABLE IF NOT EXISTS user_questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			question_text TEXT NOT NULL DEFAULT '',
			notes_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_questions_post ON user_questions(post_id)`,

		`CREATE TABLE IF NOT EXISTS user_topics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			topic_text TEXT NOT NULL DEFAULT '',
			notes_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_topics_post ON user_topics(post_id)`,

		`CREATE TABLE IF NOT EXISTS tag_registry (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT NOT NULL CHECK (level IN ('group', 'subgroup', 'tag')),
			value TEXT NOT NULL,
			value_key TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (level, value_key)
		)`,

		`CREATE TABLE IF NOT EXISTS tag_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			tag_id INTEGER NOT NULL REFERENCES tag_registry(id),
			level TEXT NOT NULL,
			source TEXT NOT NULL CHECK (source IN ('user', 'ai', 'import')),
			created_at TIMESTAMP NOT NULL,
			UNIQUE (post_id, tag_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tag_assignments_post_level ON tag_assignments(post_id, level)`,
		`CREATE INDEX IF NOT EXISTS idx_tag_assignments_tag ON tag_assignments(tag_id)`,

		`CREATE TABLE IF NOT EXISTS inference_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			response_id TEXT NOT NULL,
			post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
			inference_type TEXT NOT NULL,
			rating TEXT CHECK (rating IS NULL OR rating IN ('positive', 'negative')),
			feedback_text TEXT,
			user_id INTEGER,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (post_id, inference_type, response_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_post_type ON inference_feedback(post_id, inference_type, updated_at)`,

		`CREATE TABLE IF NOT EXISTS schema_info (
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`INSERT INTO schema_info (version) SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM schema_info)`,
	},
}
