package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Zones table - one row per interaction circle, in display order
		`CREATE TABLE IF NOT EXISTS zones (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			center_x REAL NOT NULL,
			center_y REAL NOT NULL,
			radius REAL NOT NULL CHECK(radius > 0),
			stroke REAL NOT NULL DEFAULT 3,
			color TEXT NOT NULL DEFAULT '#00d1ff',
			image TEXT NOT NULL DEFAULT '',
			audio TEXT NOT NULL DEFAULT '',
			volume REAL NOT NULL DEFAULT 1 CHECK(volume >= 0 AND volume <= 1),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Zone events table - activation history
		`CREATE TABLE IF NOT EXISTS zone_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zone_id TEXT NOT NULL REFERENCES zones(id) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK(kind IN ('activate', 'deactivate')),
			at DATETIME NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_zones_position ON zones(position)`,
		`CREATE INDEX IF NOT EXISTS idx_zone_events_zone_id ON zone_events(zone_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
