// Package store provides append-only persistence for agent threads, messages
// and the remote call audit trail.
//
// # Architecture
//
// Store is the single contract used by the conversation layer. Three
// implementations exist:
//
//   - SQLiteStore: embedded database, pure Go driver (modernc.org/sqlite) by
//     default or the cgo driver (github.com/mattn/go-sqlite3)
//   - PostgresStore: server database over a pgx pool; also answers
//     CurrentUser from the session, like a warehouse connection would
//   - MockStore: in-memory, for unit tests, with write failure injection
//
// Open selects an implementation by driver name ("sqlite", "sqlite3",
// "postgres").
//
// # Data Models
//
//   - Thread: id issued by the remote agent API, owning user, created_at, title
//   - Message: (thread_id, message_id, role, content, created_at); message ids
//     are not unique because independent clients may race on one thread
//   - AuditRecord: one row per remote call with timing, context and status
//
// # Tables
//
//	agent_threads    ORDER BY created_at DESC per user
//	agent_messages   ORDER BY message_id ASC, created_at ASC per thread
//	api_call_audit   ORDER BY start_ts DESC
//
// All writes are inserts. Nothing is updated or deleted. Every statement is
// parameterized.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(path) in t.TempDir()
// for integration tests with real SQLite.
package store
