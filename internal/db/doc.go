// Package db is the data access layer: the host registry and the run history
// ledger, implemented with bun over SQLite, PostgreSQL or MySQL.
//
// Schema changes live in embedded migrations under migrations/<dbType>/ and
// are tracked in schema_migrations. Columns added after the first release are
// applied by EnsureColumns, which tolerates columns that already exist so a
// database created by an older deployment opens cleanly.
//
// Testing notes
//   - Use NewStoreFromDSN("sqlite", "file:<name>?mode=memory&cache=shared") in
//     tests that need real DB semantics and migrations. In-memory databases
//     are pinned to a single connection.
package db
