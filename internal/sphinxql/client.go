// Package sphinxql is the search-engine protocol client. It renders
// SphinxQL statements and runs them through database/sql, so any driver
// speaking the MySQL protocol can carry them.
package sphinxql

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/internal/observability"
	"github.com/arkilian/rtsync/internal/sqlutil"
	"github.com/arkilian/rtsync/pkg/types"
)

// Client issues commands to one or more searchd hosts. Writes go to every
// host in order; reads use the first host that answers.
type Client struct {
	hosts   []sqlutil.DB
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client over the given hosts.
func NewClient(hosts []sqlutil.DB, opts ...Option) (*Client, error) {
	if len(hosts) == 0 {
		return nil, rterrors.NewValidationError(rterrors.CodeInvalidValue, "sphinxql: at least one host is required")
	}
	c := &Client{
		hosts:  hosts,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Replace upserts row into index.
func (c *Client) Replace(ctx context.Context, index string, row types.Row) error {
	stmt, err := RenderReplace(index, row)
	if err != nil {
		return err
	}
	return c.Exec(ctx, "replace", index, stmt)
}

// Delete removes a document from a real-time index.
func (c *Client) Delete(ctx context.Context, index string, id uint64) error {
	stmt, err := RenderDelete(index, id)
	if err != nil {
		return err
	}
	return c.Exec(ctx, "delete", index, stmt)
}

// SoftDelete marks a document deleted in a core index.
func (c *Client) SoftDelete(ctx context.Context, index string, id uint64) error {
	stmt, err := RenderSoftDelete(index, id)
	if err != nil {
		return err
	}
	return c.Exec(ctx, "soft_delete", index, stmt)
}

// Update sets fields on every document matching where and matching.
func (c *Client) Update(ctx context.Context, index string, fields types.Row, where types.Where, matching string) error {
	stmt, err := RenderUpdate(index, fields, where, matching)
	if err != nil {
		return err
	}
	return c.Exec(ctx, "update", index, stmt)
}

// SelectBatch returns the rows of q whose key is greater than after.
func (c *Client) SelectBatch(ctx context.Context, q BatchQuery, after uint64) ([]types.Row, error) {
	stmt, err := RenderSelectBatch(q, after)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, host := range c.hosts {
		start := time.Now()
		rows, err := host.QueryContext(ctx, stmt)
		if err == nil {
			var out []types.Row
			out, err = sqlutil.ScanRows(rows)
			if err == nil {
				c.metrics.ObserveCommand("select", q.Index, nil, time.Since(start))
				return out, nil
			}
		}
		c.metrics.ObserveCommand("select", q.Index, err, time.Since(start))
		c.logger.WarnContext(ctx, "select failed", "index", q.Index, "error", err)
		lastErr = err
	}
	return nil, rterrors.NewTransportError(rterrors.CodeQueryFailed, "select from "+q.Index, lastErr)
}

// FindWhileExists scans q in key order, one batch at a time, until a batch
// comes back empty. The sequence is lazy: each batch is fetched when the
// consumer asks for it, starting after the previous batch's largest key.
// A batch whose largest key does not advance the cursor ends the sequence
// with an error.
func (c *Client) FindWhileExists(ctx context.Context, q BatchQuery) iter.Seq2[[]types.Row, error] {
	return func(yield func([]types.Row, error) bool) {
		var after uint64
		for {
			batch, err := c.SelectBatch(ctx, q, after)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(batch) == 0 {
				return
			}

			next, err := maxKey(batch, q.KeyColumn)
			if err == nil && next <= after {
				err = rterrors.NewDrainError(rterrors.CodeCursorRegression,
					fmt.Sprintf("sphinxql: %s cursor did not advance past %d", q.Index, after))
			}
			if err != nil {
				yield(nil, err)
				return
			}
			after = next

			if !yield(batch, nil) {
				return
			}
		}
	}
}

func maxKey(batch []types.Row, key string) (uint64, error) {
	var top uint64
	for _, row := range batch {
		v, ok := row.Uint64(key)
		if !ok {
			return 0, rterrors.NewDrainError(rterrors.CodeMissingKey,
				fmt.Sprintf("sphinxql: row without key column %s", key))
		}
		if v > top {
			top = v
		}
	}
	return top, nil
}

// Exec runs a pre-rendered statement on every host. op and index label logs
// and metrics.
func (c *Client) Exec(ctx context.Context, op, index, stmt string) error {
	for _, host := range c.hosts {
		start := time.Now()
		_, err := host.ExecContext(ctx, stmt)
		c.metrics.ObserveCommand(op, index, err, time.Since(start))
		if err != nil {
			c.logger.ErrorContext(ctx, "command failed", "op", op, "index", index, "error", err)
			return rterrors.NewTransportError(rterrors.CodeCommandFailed, op+" on "+index, err)
		}
	}
	c.logger.DebugContext(ctx, "command executed", "op", op, "index", index)
	return nil
}
