package sphinxql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	rterrors "github.com/arkilian/rtsync/internal/errors"
	"github.com/arkilian/rtsync/pkg/types"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sphinxMaxMatches is searchd's default max_matches; larger limits need an
// explicit OPTION.
const sphinxMaxMatches = 1000

// Quote renders s as a SphinxQL string literal.
func Quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '\'':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case 0:
			sb.WriteString(`\0`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}

func ident(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue,
			fmt.Sprintf("sphinxql: invalid identifier %q", name))
	}
	return name, nil
}

// Literal renders a Go value as a SphinxQL literal. Slices render as MVA
// tuples whose elements must be integers.
func Literal(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "''", nil
	case string:
		return Quote(x), nil
	case []byte:
		return Quote(string(x)), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case time.Time:
		return strconv.FormatInt(x.Unix(), 10), nil
	case []string:
		return tuple(len(x), func(i int) (string, error) { return mvaToken(x[i]) })
	case []int64:
		return tuple(len(x), func(i int) (string, error) { return strconv.FormatInt(x[i], 10), nil })
	case []int:
		return tuple(len(x), func(i int) (string, error) { return strconv.Itoa(x[i]), nil })
	case []uint64:
		return tuple(len(x), func(i int) (string, error) { return strconv.FormatUint(x[i], 10), nil })
	case []uint32:
		return tuple(len(x), func(i int) (string, error) { return strconv.FormatUint(uint64(x[i]), 10), nil })
	case []any:
		return tuple(len(x), func(i int) (string, error) { return mvaElement(x[i]) })
	default:
		return "", rterrors.NewValidationError(rterrors.CodeUnsupportedType,
			fmt.Sprintf("sphinxql: unsupported value type %T", v))
	}
}

func tuple(n int, elem func(i int) (string, error)) (string, error) {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		s, err := elem(i)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return "(" + strings.Join(parts, ",") + ")", nil
}

func mvaToken(s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseInt(s, 10, 64); err != nil {
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue,
			fmt.Sprintf("sphinxql: non-integer mva value %q", s))
	}
	return s, nil
}

func mvaElement(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return mvaToken(x)
	case []byte:
		return mvaToken(string(x))
	case int, int32, int64, uint32, uint64:
		return Literal(x)
	default:
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue,
			fmt.Sprintf("sphinxql: unsupported mva element %T", v))
	}
}

// conditions renders MATCH and equality filters joined by AND.
func conditions(where types.Where, matching string) ([]string, error) {
	var conds []string
	if matching != "" {
		conds = append(conds, "MATCH("+Quote(matching)+")")
	}
	for _, key := range where.Keys() {
		col, err := ident(key)
		if err != nil {
			return nil, err
		}
		switch v := where[key].(type) {
		case []int64, []int, []uint64, []uint32, []string, []any:
			list, err := Literal(v)
			if err != nil {
				return nil, err
			}
			if list == "()" {
				return nil, rterrors.NewValidationError(rterrors.CodeInvalidValue,
					fmt.Sprintf("sphinxql: empty IN list for %s", key))
			}
			conds = append(conds, col+" IN "+list)
		default:
			lit, err := Literal(v)
			if err != nil {
				return nil, err
			}
			conds = append(conds, col+" = "+lit)
		}
	}
	return conds, nil
}

// RenderReplace renders an upsert of row, keyed by its id column.
func RenderReplace(index string, row types.Row) (string, error) {
	name, err := ident(index)
	if err != nil {
		return "", err
	}
	if _, ok := row.DocumentID(); !ok {
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue,
			fmt.Sprintf("sphinxql: replace into %s without a document id", index))
	}

	cols := row.Columns()
	values := make([]string, len(cols))
	for i, col := range cols {
		if _, err := ident(col); err != nil {
			return "", err
		}
		lit, err := Literal(row[col])
		if err != nil {
			return "", err
		}
		values[i] = lit
	}
	return fmt.Sprintf("REPLACE INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), strings.Join(values, ", ")), nil
}

// RenderDelete renders a delete by document id.
func RenderDelete(index string, id uint64) (string, error) {
	name, err := ident(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %d", name, types.ColumnID, id), nil
}

// RenderSoftDelete renders the soft-delete marker update for a core index.
func RenderSoftDelete(index string, id uint64) (string, error) {
	name, err := ident(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("UPDATE %s SET %s = 1 WHERE %s = %d", name, types.ColumnDeleted, types.ColumnID, id), nil
}

// RenderUpdate renders a partial attribute update by predicate. An update
// without any condition is rejected.
func RenderUpdate(index string, fields types.Row, where types.Where, matching string) (string, error) {
	name, err := ident(index)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue,
			fmt.Sprintf("sphinxql: update of %s without fields", index))
	}

	cols := fields.Columns()
	sets := make([]string, len(cols))
	for i, col := range cols {
		if _, err := ident(col); err != nil {
			return "", err
		}
		lit, err := Literal(fields[col])
		if err != nil {
			return "", err
		}
		sets[i] = col + " = " + lit
	}

	conds, err := conditions(where, matching)
	if err != nil {
		return "", err
	}
	if len(conds) == 0 {
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue,
			fmt.Sprintf("sphinxql: update of %s without a condition", index))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		name, strings.Join(sets, ", "), strings.Join(conds, " AND ")), nil
}

// BatchQuery describes a keyset-paginated scan of an index.
type BatchQuery struct {
	Index     string
	KeyColumn string
	Columns   []string
	Where     types.Where
	Matching  string
	BatchSize int
}

// RenderSelectBatch renders the page of q that follows key value after.
func RenderSelectBatch(q BatchQuery, after uint64) (string, error) {
	name, err := ident(q.Index)
	if err != nil {
		return "", err
	}
	key, err := ident(q.KeyColumn)
	if err != nil {
		return "", err
	}
	if q.BatchSize <= 0 {
		return "", rterrors.NewValidationError(rterrors.CodeInvalidValue, "sphinxql: batch size must be positive")
	}

	cols := "*"
	if len(q.Columns) > 0 {
		for _, c := range q.Columns {
			if _, err := ident(c); err != nil {
				return "", err
			}
		}
		cols = strings.Join(q.Columns, ", ")
	}

	conds, err := conditions(q.Where, q.Matching)
	if err != nil {
		return "", err
	}
	conds = append(conds, fmt.Sprintf("%s > %d", key, after))

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC LIMIT %d",
		cols, name, strings.Join(conds, " AND "), key, q.BatchSize)
	if q.BatchSize > sphinxMaxMatches {
		stmt += fmt.Sprintf(" OPTION max_matches=%d", q.BatchSize)
	}
	return stmt, nil
}
