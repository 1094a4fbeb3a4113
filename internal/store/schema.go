package store

// migrations is a forward-only, ordered list of schema changes. Startup
// applies every migration whose version is not yet recorded in
// schema_migrations, each inside its own transaction, per spec §4.A.
var migrations = []string{
	// version 1: base schema
	`
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		primary_namespace_id TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS namespaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('personal', 'shared')),
		owner_user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
		repo_limit INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_namespaces_name_ci ON namespaces(LOWER(name));

	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
		secret_hash TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		last_used_at INTEGER,
		revoked_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_tokens_user ON tokens(user_id);

	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		parent_id TEXT REFERENCES folders(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(namespace_id, parent_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_folders_namespace ON folders(namespace_id);
	CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

	CREATE TABLE IF NOT EXISTS repos (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		folder_id TEXT REFERENCES folders(id) ON DELETE SET NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		UNIQUE(namespace_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_repos_namespace ON repos(namespace_id);
	CREATE INDEX IF NOT EXISTS idx_repos_folder ON repos(folder_id);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		UNIQUE(namespace_id, name)
	);

	CREATE TABLE IF NOT EXISTS repo_tags (
		repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (repo_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS namespace_grants (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		namespace_id TEXT NOT NULL REFERENCES namespaces(id) ON DELETE CASCADE,
		scopes TEXT NOT NULL,
		granted_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, namespace_id)
	);

	CREATE TABLE IF NOT EXISTS repo_grants (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
		scopes TEXT NOT NULL,
		granted_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, repo_id)
	);
	`,
}

func (s *SQLiteStore) applyMigrations() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return err
	}

	for i, stmt := range migrations {
		version := i + 1

		var applied int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&applied); err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, nowMicros()); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
