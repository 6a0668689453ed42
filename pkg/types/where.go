package types

import "sort"

// Where is a set of column equality filters. A slice value renders as an
// IN list.
type Where map[string]any

// Keys returns the filter columns in lexical order.
func (w Where) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of w.
func (w Where) Clone() Where {
	out := make(Where, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
