package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    owner TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    design_notes TEXT NOT NULL DEFAULT '',
    acceptance_criteria TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'proposed',
    priority INTEGER NOT NULL DEFAULT 2 CHECK(priority >= 0 AND priority <= 4),
    issue_type TEXT NOT NULL DEFAULT 'task',
    assignees TEXT NOT NULL DEFAULT '',
    epic_id TEXT NOT NULL DEFAULT '',
    blocked_reason TEXT NOT NULL DEFAULT '',
    source_url TEXT NOT NULL DEFAULT '',
    refs TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    closed_at DATETIME,
    CHECK ((status IN ('completed','closed')) = (closed_at IS NOT NULL)),
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_issues_project ON issues(project_id);
CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_priority ON issues(priority);
CREATE INDEX IF NOT EXISTS idx_issues_epic ON issues(epic_id);
CREATE INDEX IF NOT EXISTS idx_issues_created_at ON issues(created_at);
CREATE INDEX IF NOT EXISTS idx_issues_updated_at ON issues(updated_at);

CREATE TABLE IF NOT EXISTS labels (
    issue_id TEXT NOT NULL,
    label TEXT NOT NULL,
    rowid_order INTEGER,
    PRIMARY KEY (issue_id, label),
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_labels_label ON labels(label);

CREATE TABLE IF NOT EXISTS dependencies (
    from_issue_id TEXT NOT NULL,
    to_issue_id TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT 'blocks',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (from_issue_id, to_issue_id, kind),
    FOREIGN KEY (from_issue_id) REFERENCES issues(id) ON DELETE CASCADE,
    FOREIGN KEY (to_issue_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_deps_from ON dependencies(from_issue_id);
CREATE INDEX IF NOT EXISTS idx_deps_to_kind ON dependencies(to_issue_id, kind);
CREATE INDEX IF NOT EXISTS idx_deps_kind ON dependencies(kind);

CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL,
    author TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id);

CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    username TEXT NOT NULL DEFAULT '',
    ts DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    details TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries(entity_id, ts DESC);

CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS issues_fts USING fts5(
    id UNINDEXED,
    title,
    description,
    labels_text,
    content='issues',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS issues_fts_insert AFTER INSERT ON issues BEGIN
    INSERT INTO issues_fts(rowid, id, title, description, labels_text)
    VALUES (new.rowid, new.id, new.title, new.description, '');
END;

CREATE TRIGGER IF NOT EXISTS issues_fts_update AFTER UPDATE ON issues BEGIN
    INSERT INTO issues_fts(issues_fts, rowid, id, title, description, labels_text)
    VALUES ('delete', old.rowid, old.id, old.title, old.description, '');
    INSERT INTO issues_fts(rowid, id, title, description, labels_text)
    VALUES (new.rowid, new.id, new.title, new.description,
            (SELECT COALESCE(GROUP_CONCAT(label, ' '), '') FROM labels WHERE issue_id = new.id));
END;

CREATE TRIGGER IF NOT EXISTS issues_fts_delete AFTER DELETE ON issues BEGIN
    INSERT INTO issues_fts(issues_fts, rowid, id, title, description, labels_text)
    VALUES ('delete', old.rowid, old.id, old.title, old.description, '');
END;

CREATE TRIGGER IF NOT EXISTS issues_fts_label_insert AFTER INSERT ON labels BEGIN
    INSERT INTO issues_fts(issues_fts, rowid, id, title, description, labels_text)
    SELECT 'delete', i.rowid, i.id, i.title, i.description, ''
    FROM issues i WHERE i.id = new.issue_id;
    INSERT INTO issues_fts(rowid, id, title, description, labels_text)
    SELECT i.rowid, i.id, i.title, i.description,
           (SELECT COALESCE(GROUP_CONCAT(label, ' '), '') FROM labels WHERE issue_id = i.id)
    FROM issues i WHERE i.id = new.issue_id;
END;

CREATE TRIGGER IF NOT EXISTS issues_fts_label_delete AFTER DELETE ON labels BEGIN
    INSERT INTO issues_fts(issues_fts, rowid, id, title, description, labels_text)
    SELECT 'delete', i.rowid, i.id, i.title, i.description, ''
    FROM issues i WHERE i.id = old.issue_id;
    INSERT INTO issues_fts(rowid, id, title, description, labels_text)
    SELECT i.rowid, i.id, i.title, i.description,
           (SELECT COALESCE(GROUP_CONCAT(label, ' '), '') FROM labels WHERE issue_id = i.id)
    FROM issues i WHERE i.id = old.issue_id;
END;
`

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
`

// currentSchemaVersion bumps whenever schema changes shape; migrate
// checks this against schema_version before applying the base schema.
const currentSchemaVersion = 1
