package courier

// Schema defines the routes table driving message dispatch. One row per
// message type; no row means the type dispatches to its local handler.
//
// Strategies:
//   - "local": in-process Handler registered via RegisterLocal.
//   - "http":  POST to the endpoint via the HTTP transport factory.
//   - "noop":  the message type is switched off; sends succeed empty.
//
// The config column holds per-route JSON (timeout_ms, content_type). Any
// write to this table bumps PRAGMA data_version, which Watch picks up.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    message_type TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TRIGGER IF NOT EXISTS trg_routes_updated_at
AFTER UPDATE ON routes
FOR EACH ROW
BEGIN
    UPDATE routes SET updated_at = strftime('%s', 'now') WHERE message_type = NEW.message_type;
END;
`
