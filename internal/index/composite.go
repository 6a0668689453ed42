package index

// CompositeTable maps an absorbed field name to the composite field that
// replaces it in match expressions. It is built once when the index
// definitions are loaded and is read-only afterwards.
type CompositeTable map[string]string

// BuildCompositeTable scans the composite declarations of the real-time
// indexes in order. When a field is absorbed by several composites, the
// first one found wins.
func BuildCompositeTable(indexes []*Index) CompositeTable {
	table := make(CompositeTable)
	for _, idx := range RTIndexes(indexes) {
		for _, composite := range idx.CompositeNames() {
			for _, field := range idx.Composite[composite] {
				if _, taken := table[field]; !taken {
					table[field] = composite
				}
			}
		}
	}
	return table
}

// Resolve returns the composite name absorbing field, or field itself.
func (t CompositeTable) Resolve(field string) string {
	if composite, ok := t[field]; ok {
		return composite
	}
	return field
}
