// Package state persists the cluster flags that steer the write path and
// the waste records collected during a full reindex, in a SQLite database
// shared by every writer on the host.
package state

// CreateFlagsTableSQL creates the flags table. Each flag is one row.
const CreateFlagsTableSQL = `
CREATE TABLE IF NOT EXISTS flags (
    name TEXT PRIMARY KEY,
    value INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateWasteRecordsTableSQL creates the waste records table. Document ids
// are kept per index as a serialized roaring64 bitmap.
const CreateWasteRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS waste_records (
    index_name TEXT PRIMARY KEY,
    bitmap BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// Flag names.
const (
	FlagFullReindex      = "full_reindex"
	FlagOnlineIndexing   = "online_indexing"
	FlagCurrentPartition = "current_partition"
)

// AllSchemaSQL returns the statements that initialize the database.
func AllSchemaSQL() []string {
	return []string{CreateFlagsTableSQL, CreateWasteRecordsTableSQL}
}
