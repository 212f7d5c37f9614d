package store

// Schema contains the node's persistent relational layout, applied with
// CREATE TABLE IF NOT EXISTS so opening an existing database is a no-op.
// Grounded on certenIO-certen-validator's
// liteclient/storage/sqlite/schema.go single-constant-schema pattern.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	domain TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS facts (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	content         TEXT NOT NULL,
	hash            TEXT NOT NULL UNIQUE,
	status          TEXT NOT NULL,
	score           INTEGER NOT NULL DEFAULT 0,
	disputed        INTEGER NOT NULL DEFAULT 0,
	disputed_reason TEXT,
	last_checked    TIMESTAMP NOT NULL,
	semantics       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_hash ON facts(hash);
CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(json_extract(semantics, '$.subject'));

CREATE TABLE IF NOT EXISTS fact_sources (
	fact_id   INTEGER NOT NULL REFERENCES facts(id),
	source_id INTEGER NOT NULL REFERENCES sources(id),
	PRIMARY KEY (fact_id, source_id)
);

CREATE TABLE IF NOT EXISTS fact_links (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	fact1_id INTEGER NOT NULL REFERENCES facts(id),
	fact2_id INTEGER NOT NULL REFERENCES facts(id),
	score    INTEGER NOT NULL,
	UNIQUE (fact1_id, fact2_id)
);

CREATE TABLE IF NOT EXISTS blocks (
	height        INTEGER PRIMARY KEY,
	previous_hash TEXT NOT NULL,
	fact_hashes   TEXT NOT NULL, -- JSON array of hex strings, insertion order
	merkle_root   TEXT NOT NULL,
	timestamp     REAL NOT NULL,
	nonce         INTEGER NOT NULL,
	hash          TEXT NOT NULL UNIQUE
);

`

// pragmas configures SQLite for a single-writer, many-reader workload:
// WAL allows readers to proceed while a writer transaction is open.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}
