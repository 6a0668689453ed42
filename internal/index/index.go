// Package index describes the search indexes a model is written into.
//
// Every logical index has three physical surfaces: an immutable core index
// rebuilt by the indexer, and two real-time partitions that receive
// individual writes. The logical name itself addresses the distributed index
// that unions them.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/pkg/types"
)

// IDPlaceholder is substituted with the record's source id in SingleRowQuery.
const IDPlaceholder = "%{ID}"

// MVAProducer computes the value of a multi-valued attribute for a record.
type MVAProducer func(ctx context.Context, rec types.Record) (any, error)

// Index is the definition of one logical search index.
type Index struct {
	// Name is the logical index name; writes that need no partition
	// fan-out go here.
	Name string `json:"name" yaml:"name"`

	// RT marks indexes that have real-time partitions.
	RT bool `json:"rt" yaml:"rt"`

	// Attributes declares the type of each attribute for coercion.
	Attributes map[string]types.AttrType `json:"attributes" yaml:"attributes"`

	// SingleRowQuery selects one document row; it must contain IDPlaceholder.
	SingleRowQuery string `json:"single_row_query" yaml:"single_row_query"`

	// Composite maps a composite field name to the fields it absorbs.
	Composite map[string][]string `json:"composite,omitempty" yaml:"composite,omitempty"`

	// MVA produces multi-valued attributes that the row query cannot select.
	MVA map[string]MVAProducer `json:"-" yaml:"-"`

	// UpdateHook rewrites the single-row query before it is executed.
	UpdateHook func(query string) string `json:"-" yaml:"-"`

	// PartitionName overrides the default real-time partition naming.
	PartitionName func(p types.Partition) string `json:"-" yaml:"-"`
}

// CoreName returns the name of the immutable core index.
func (i *Index) CoreName() string {
	return i.Name + "_core"
}

// RTName returns the name of the real-time index behind partition p.
func (i *Index) RTName(p types.Partition) string {
	if i.PartitionName != nil {
		return i.PartitionName(p)
	}
	return fmt.Sprintf("%s_rt%d", i.Name, uint8(p))
}

// AttributeType returns the declared type of an attribute, AttrOther when
// it is not declared.
func (i *Index) AttributeType(name string) types.AttrType {
	if t, ok := i.Attributes[name]; ok {
		return t
	}
	return types.AttrOther
}

// RowQuery renders the single-row query for a source id, applying the
// update hook when one is declared.
func (i *Index) RowQuery(sourceID int64) string {
	q := strings.ReplaceAll(i.SingleRowQuery, IDPlaceholder, fmt.Sprintf("%d", sourceID))
	if i.UpdateHook != nil {
		q = i.UpdateHook(q)
	}
	return q
}

// CompositeNames returns the composite field names in lexical order.
func (i *Index) CompositeNames() []string {
	names := make([]string, 0, len(i.Composite))
	for name := range i.Composite {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the definition can be written to.
func (i *Index) Validate() error {
	if i.Name == "" {
		return rterrors.NewValidationError(rterrors.CodeInvalidIndex, "index name is required")
	}
	if i.RT && !strings.Contains(i.SingleRowQuery, IDPlaceholder) {
		return rterrors.NewValidationError(rterrors.CodeInvalidIndex,
			fmt.Sprintf("index %s: single_row_query must contain %s", i.Name, IDPlaceholder))
	}
	for name := range i.MVA {
		if i.AttributeType(name) != types.AttrMulti {
			return rterrors.NewValidationError(rterrors.CodeInvalidIndex,
				fmt.Sprintf("index %s: mva producer %s is not declared as multi", i.Name, name))
		}
	}
	return nil
}

// Model is a source entity type together with the indexes it feeds.
type Model interface {
	// Name identifies the model in logs and metrics.
	Name() string

	// Indexes returns the model's indexes in declaration order.
	Indexes() []*Index

	// Records loads the records with the given source ids. Ids that no
	// longer exist are omitted.
	Records(ctx context.Context, ids []int64) ([]types.Record, error)
}

// RTIndexes filters the real-time capable indexes, keeping declaration order.
func RTIndexes(indexes []*Index) []*Index {
	var out []*Index
	for _, idx := range indexes {
		if idx.RT {
			out = append(out, idx)
		}
	}
	return out
}
