package store

// Schemas mirror the external app's tables plus the dedup_key column and
// the unique indexes the upsert relies on.

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL,
		slug            TEXT NOT NULL,
		logo            TEXT NOT NULL DEFAULT 'default-logo.svg',
		location        TEXT NOT NULL DEFAULT 'South Africa',
		website         TEXT,
		"openPositions" INTEGER NOT NULL DEFAULT 1,
		"hiringScore"   INTEGER NOT NULL DEFAULT 0,
		"createdAt"     TIMESTAMPTZ NOT NULL DEFAULT now(),
		"updatedAt"     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS companies_name_lower_key ON companies (LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id           BIGSERIAL PRIMARY KEY,
		dedup_key    TEXT NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		location     TEXT NOT NULL DEFAULT '',
		salary       TEXT NOT NULL DEFAULT '',
		"jobType"    TEXT NOT NULL DEFAULT 'Full-time',
		"workMode"   TEXT NOT NULL DEFAULT 'On-site',
		"companyId"  BIGINT NOT NULL REFERENCES companies(id),
		"categoryId" INTEGER NOT NULL DEFAULT 2,
		"isFeatured" BOOLEAN NOT NULL DEFAULT false,
		source_url   TEXT NOT NULL DEFAULT '',
		source_site  TEXT NOT NULL DEFAULT '',
		external_id  TEXT,
		apply_url    TEXT NOT NULL DEFAULT '',
		"createdAt"  TIMESTAMPTZ NOT NULL DEFAULT now(),
		"updatedAt"  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS jobs_dedup_key_key ON jobs (dedup_key)`,
	`CREATE INDEX IF NOT EXISTS jobs_source_external_idx ON jobs (source_site, external_id)`,
	`CREATE INDEX IF NOT EXISTS jobs_company_idx ON jobs ("companyId")`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS companies (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		name            TEXT NOT NULL,
		slug            TEXT NOT NULL,
		logo            TEXT NOT NULL DEFAULT 'default-logo.svg',
		location        TEXT NOT NULL DEFAULT 'South Africa',
		website         TEXT,
		"openPositions" INTEGER NOT NULL DEFAULT 1,
		"hiringScore"   INTEGER NOT NULL DEFAULT 0,
		"createdAt"     DATETIME NOT NULL DEFAULT (datetime('now')),
		"updatedAt"     DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS companies_name_lower_key ON companies (LOWER(name))`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		dedup_key    TEXT NOT NULL,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		location     TEXT NOT NULL DEFAULT '',
		salary       TEXT NOT NULL DEFAULT '',
		"jobType"    TEXT NOT NULL DEFAULT 'Full-time',
		"workMode"   TEXT NOT NULL DEFAULT 'On-site',
		"companyId"  INTEGER NOT NULL REFERENCES companies(id),
		"categoryId" INTEGER NOT NULL DEFAULT 2,
		"isFeatured" BOOLEAN NOT NULL DEFAULT 0,
		source_url   TEXT NOT NULL DEFAULT '',
		source_site  TEXT NOT NULL DEFAULT '',
		external_id  TEXT,
		apply_url    TEXT NOT NULL DEFAULT '',
		"createdAt"  DATETIME NOT NULL DEFAULT (datetime('now')),
		"updatedAt"  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS jobs_dedup_key_key ON jobs (dedup_key)`,
	`CREATE INDEX IF NOT EXISTS jobs_source_external_idx ON jobs (source_site, external_id)`,
	`CREATE INDEX IF NOT EXISTS jobs_company_idx ON jobs ("companyId")`,
}
