package types

import "context"

// Record is a source entity that can be projected into an index.
type Record interface {
	// SourceID is the stable id of the entity in the relational source.
	SourceID() int64

	// DocumentID is the id of the entity inside every index copy.
	DocumentID() uint64

	// FetchRow executes a single-row query against the record's source.
	// It returns a nil Row when the query yields nothing.
	FetchRow(ctx context.Context, query string) (Row, error)
}
