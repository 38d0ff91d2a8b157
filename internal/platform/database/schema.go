package database

// coreSchema holds the provenance tables. Dates are ISO-8601 TEXT so that
// lexical comparison matches chronological order on both dialects.
var coreSchema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		{{pk}},
		name TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL CHECK (category IN ('government', 'ngo', 'academic', 'media', 'legal')),
		trust_tier TEXT NOT NULL CHECK (trust_tier IN ('high', 'medium', 'low', 'contested')),
		url TEXT NOT NULL DEFAULT '',
		archive_url TEXT,
		last_verified TEXT,
		verification_notes TEXT NOT NULL DEFAULT '',
		known_limitations TEXT NOT NULL DEFAULT '',
		derived {{bigint}} NOT NULL DEFAULT 0,
		version {{bigint}} NOT NULL DEFAULT 1,
		retired_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS source_versions (
		{{pk}},
		source_id {{bigint}} NOT NULL REFERENCES sources(id),
		version {{bigint}} NOT NULL,
		snapshot TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		changed_at TEXT NOT NULL,
		UNIQUE (source_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS data_points (
		{{pk}},
		metric_name TEXT NOT NULL,
		metric_category TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL,
		value_numeric {{numeric}},
		unit TEXT NOT NULL DEFAULT '',
		date_reported TEXT,
		date_retrieved TEXT,
		primary_source_id {{bigint}} NOT NULL REFERENCES sources(id),
		verification_status TEXT NOT NULL CHECK (verification_status IN ('verified', 'unverified', 'contested', 'retracted')),
		government_figure TEXT,
		independent_figure TEXT,
		government_source_id {{bigint}} REFERENCES sources(id),
		independent_source_id {{bigint}} REFERENCES sources(id),
		discrepancy_notes TEXT NOT NULL DEFAULT '',
		methodology_notes TEXT NOT NULL DEFAULT '',
		caveats TEXT NOT NULL DEFAULT '',
		trust_badge TEXT NOT NULL DEFAULT 'UNVERIFIED',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS data_points_metric_name ON data_points (metric_name)`,
	`CREATE TABLE IF NOT EXISTS data_point_cross_references (
		data_point_id {{bigint}} NOT NULL REFERENCES data_points(id) ON DELETE CASCADE,
		source_id {{bigint}} NOT NULL REFERENCES sources(id),
		position {{bigint}} NOT NULL,
		PRIMARY KEY (data_point_id, source_id)
	)`,
	`CREATE INDEX IF NOT EXISTS data_point_cross_references_source ON data_point_cross_references (source_id)`,
	`CREATE TABLE IF NOT EXISTS contradictions (
		{{pk}},
		metric_name TEXT NOT NULL,
		metric_category TEXT NOT NULL DEFAULT '',
		data_point_id {{bigint}} REFERENCES data_points(id),
		government_claim TEXT NOT NULL,
		government_source_id {{bigint}} REFERENCES sources(id),
		independent_finding TEXT NOT NULL,
		independent_source_id {{bigint}} REFERENCES sources(id),
		discrepancy_explanation TEXT NOT NULL DEFAULT '',
		recommended_figure TEXT NOT NULL,
		recommendation_rationale TEXT NOT NULL DEFAULT '',
		use_with_caution {{bigint}} NOT NULL DEFAULT 0,
		severity TEXT NOT NULL CHECK (severity IN ('minor', 'significant', 'major', 'critical')),
		status TEXT NOT NULL CHECK (status IN ('open', 'resolved')),
		date_identified TEXT NOT NULL,
		resolved_at TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS contradictions_one_open_per_metric ON contradictions (metric_name) WHERE status = 'open'`,
	`CREATE TABLE IF NOT EXISTS data_changelog (
		{{pk}},
		table_name TEXT NOT NULL,
		record_id {{bigint}} NOT NULL,
		change_type TEXT NOT NULL,
		field TEXT NOT NULL DEFAULT '',
		old_value TEXT,
		new_value TEXT,
		reason TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		changed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS data_changelog_record ON data_changelog (table_name, record_id)`,
}
