package store

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Sources: subscribed feeds. feed_url is the natural key.
CREATE TABLE IF NOT EXISTS sources (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    feed_url TEXT NOT NULL UNIQUE,
    active BOOLEAN NOT NULL DEFAULT 1,
    cadence TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(active);

-- Documents: one row per fetched article. url is the natural key; the
-- content hash is indexed for duplicate-content lookups but not unique,
-- since syndicated articles legitimately repeat content across URLs.
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL,
    url TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    author TEXT,
    published_at TIMESTAMP,
    raw_content TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    metadata TEXT,
    fetched_at TIMESTAMP NOT NULL,
    FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source_id);
CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(content_hash);
CREATE INDEX IF NOT EXISTS idx_documents_published ON documents(published_at);

-- Extractions: cleaned text plus embedding, one per document. sections and
-- embedding are stored as JSON; embedding stays NULL until the embed stage
-- runs.
CREATE TABLE IF NOT EXISTS extractions (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL UNIQUE,
    cleaned_text TEXT NOT NULL,
    sections TEXT NOT NULL,
    word_count INTEGER NOT NULL,
    reading_time INTEGER NOT NULL,
    excerpt TEXT NOT NULL,
    language TEXT NOT NULL,
    embedding TEXT,
    extracted_at TIMESTAMP NOT NULL,
    FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
);

-- Summaries: structured analysis output, one per extraction. analysis is
-- the five-collection JSON document.
CREATE TABLE IF NOT EXISTS summaries (
    id TEXT PRIMARY KEY,
    extraction_id TEXT NOT NULL UNIQUE,
    analysis TEXT NOT NULL,
    model_used TEXT NOT NULL,
    prompt_version TEXT NOT NULL,
    input_tokens INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd REAL NOT NULL DEFAULT 0,
    analyzed_at TIMESTAMP NOT NULL,
    FOREIGN KEY (extraction_id) REFERENCES extractions(id) ON DELETE CASCADE
);
`
