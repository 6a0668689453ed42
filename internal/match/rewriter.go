// Package match rewrites full-text match conditions so that fields merged
// into a composite field are addressed by the composite name.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arkilian/rtsync/internal/index"
	"github.com/arkilian/rtsync/pkg/types"
)

var segmentRe = regexp.MustCompile(`@(\w+)\s+([^@]*)`)

// Rewriter substitutes absorbed field names in match conditions.
type Rewriter struct {
	table index.CompositeTable
}

// NewRewriter creates a rewriter over a precomputed composite table.
func NewRewriter(table index.CompositeTable) *Rewriter {
	return &Rewriter{table: table}
}

// Rewrite renders m as "@field text" segments joined by single spaces,
// with absorbed fields replaced by their composite name. A zero Match
// renders as the empty string.
func (r *Rewriter) Rewrite(m types.Match) string {
	switch m.Kind() {
	case types.MatchNone:
		return ""
	case types.MatchFields:
		return r.render("", m.Fields())
	case types.MatchExpression:
		lead, pairs := ParseExpression(m.Expression())
		return r.render(lead, pairs)
	default:
		panic(fmt.Sprintf("match: unsupported match kind %d", m.Kind()))
	}
}

func (r *Rewriter) render(lead string, pairs []types.FieldText) string {
	parts := make([]string, 0, len(pairs)+1)
	if lead != "" {
		parts = append(parts, lead)
	}
	for _, p := range pairs {
		parts = append(parts, "@"+r.table.Resolve(p.Field)+" "+p.Text)
	}
	return strings.Join(parts, " ")
}

// ParseExpression splits an "@field text" expression into its segments.
// Free text before the first field qualifier is returned as lead.
func ParseExpression(expr string) (lead string, pairs []types.FieldText) {
	expr = strings.TrimSpace(expr)
	locs := segmentRe.FindAllStringSubmatchIndex(expr, -1)
	if len(locs) == 0 {
		return expr, nil
	}

	lead = strings.TrimSpace(expr[:locs[0][0]])
	pairs = make([]types.FieldText, 0, len(locs))
	for _, loc := range locs {
		pairs = append(pairs, types.FieldText{
			Field: expr[loc[2]:loc[3]],
			Text:  strings.TrimSpace(expr[loc[4]:loc[5]]),
		})
	}
	return lead, pairs
}
