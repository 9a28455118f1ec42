package store

// SQL schema constants for all provswitch tables. Timestamps are stored as
// RFC 3339 text in UTC.

const schemaProviders = `
CREATE TABLE IF NOT EXISTS providers (
    id TEXT PRIMARY KEY,
    app TEXT NOT NULL,
    name TEXT NOT NULL,
    template_id TEXT NOT NULL DEFAULT '',
    format TEXT NOT NULL,
    blob TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_providers_app ON providers(app);
`

const schemaCustomEndpoints = `
CREATE TABLE IF NOT EXISTS custom_endpoints (
    provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
    url TEXT NOT NULL,
    added_at TEXT NOT NULL,
    last_used TEXT,
    PRIMARY KEY (provider_id, url)
);
`

const schemaProbeResults = `
CREATE TABLE IF NOT EXISTS probe_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
    round_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    url TEXT NOT NULL,
    latency_ms INTEGER,
    http_status INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_probe_results_provider ON probe_results(provider_id, timestamp);
`

const schemaMigrations = `
CREATE TABLE IF NOT EXISTS migrations (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`
