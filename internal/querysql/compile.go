// Package querysql compiles snapshot reads of the object store to
// parameterized SQL for SQLite.
//
// Every query carries a deterministic ORDER BY with COLLATE BINARY
// tiebreakers, and every value is bound as a parameter, never interpolated.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/osq/internal/ir"
	"github.com/roach88/osq/internal/plan"
)

// Query is a sealed store read.
type Query interface {
	query()
}

// ObjectScan reads the objects of ObjectTypes live at Snapshot on Branch.
// Keys, when set, restrict the scan to those objects. Constraints are
// pushed down conjuncts; callers re-apply the full predicate.
type ObjectScan struct {
	Branch      string
	Snapshot    int64
	ObjectTypes []string
	Keys        []plan.Key
	Constraints []plan.Constraint
}

func (ObjectScan) query() {}

// LinkScan reads every edge of Link live at Snapshot on Branch.
type LinkScan struct {
	Branch   string
	Snapshot int64
	Link     string
}

func (LinkScan) query() {}

// SQLCompiler compiles queries to SQLite.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts q to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q Query) (string, []any, error) {
	switch query := q.(type) {
	case ObjectScan:
		return c.compileObjectScan(query)
	case *ObjectScan:
		return c.compileObjectScan(*query)
	case LinkScan:
		return c.compileLinkScan(query)
	case *LinkScan:
		return c.compileLinkScan(*query)
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// live is the snapshot visibility condition shared by both tables.
const live = "created_seq <= ? AND (deleted_seq IS NULL OR deleted_seq > ?)"

func (c *SQLCompiler) compileObjectScan(q ObjectScan) (string, []any, error) {
	if len(q.ObjectTypes) == 0 && len(q.Keys) == 0 {
		return "", nil, fmt.Errorf("object scan needs object types or keys")
	}

	where := []string{"branch = ?", live}
	params := []any{q.Branch, q.Snapshot, q.Snapshot}

	if len(q.ObjectTypes) > 0 {
		where = append(where, "object_type IN ("+placeholders(len(q.ObjectTypes))+")")
		for _, t := range q.ObjectTypes {
			params = append(params, t)
		}
	}

	if len(q.Keys) > 0 {
		sql, keyParams := compileKeys(q.Keys)
		where = append(where, sql)
		params = append(params, keyParams...)
	}

	types := q.ObjectTypes
	if len(types) == 0 {
		types = keyTypes(q.Keys)
	}
	for _, con := range q.Constraints {
		sql, conParams, err := c.compileConstraint(con, types)
		if err != nil {
			return "", nil, fmt.Errorf("compile constraint on %q: %w", con.Field.Identifier, err)
		}
		where = append(where, sql)
		params = append(params, conParams...)
	}

	sql := fmt.Sprintf("SELECT object_type, primary_key, properties FROM objects WHERE %s ORDER BY %s",
		strings.Join(where, " AND "),
		stableOrderKey("object_type", "primary_key"))
	return sql, params, nil
}

func (c *SQLCompiler) compileLinkScan(q LinkScan) (string, []any, error) {
	if q.Link == "" {
		return "", nil, fmt.Errorf("link scan needs a link type")
	}
	sql := fmt.Sprintf("SELECT source_type, source_key, target_type, target_key FROM links WHERE branch = ? AND link_type = ? AND %s ORDER BY %s",
		live,
		stableOrderKey("source_type", "source_key", "target_type", "target_key"))
	return sql, []any{q.Branch, q.Link, q.Snapshot, q.Snapshot}, nil
}

// stableOrderKey orders by columns bytewise so results are identical
// across SQLite versions and collations.
func stableOrderKey(columns ...string) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + " COLLATE BINARY ASC"
	}
	return strings.Join(parts, ", ")
}

// compileKeys restricts the scan to keys, grouped by object type.
func compileKeys(keys []plan.Key) (string, []any) {
	byType := make(map[string][]string)
	var order []string
	for _, k := range keys {
		if _, ok := byType[k.ObjectType]; !ok {
			order = append(order, k.ObjectType)
		}
		byType[k.ObjectType] = append(byType[k.ObjectType], k.PrimaryKey)
	}

	var (
		parts  []string
		params []any
	)
	for _, t := range order {
		pks := byType[t]
		parts = append(parts, "(object_type = ? AND primary_key IN ("+placeholders(len(pks))+"))")
		params = append(params, t)
		for _, pk := range pks {
			params = append(params, pk)
		}
	}
	return "(" + strings.Join(parts, " OR ") + ")", params
}

// compileConstraint reads the field's local name per object type, so one
// constraint over an interface scope becomes one disjunct per type.
func (c *SQLCompiler) compileConstraint(con plan.Constraint, types []string) (string, []any, error) {
	values := make([]any, len(con.Values))
	for i, v := range con.Values {
		p, err := irValueToParam(v)
		if err != nil {
			return "", nil, err
		}
		values[i] = p
	}

	var (
		parts  []string
		params []any
	)
	for _, t := range types {
		path := jsonPath(con.Field.Local(t))
		if len(values) == 0 {
			parts = append(parts, "(object_type = ? AND coalesce(json_type(properties, ?), 'null') != 'null')")
			params = append(params, t, path)
			continue
		}
		parts = append(parts, "(object_type = ? AND json_extract(properties, ?) IN ("+placeholders(len(values))+"))")
		params = append(params, t, path)
		params = append(params, values...)
	}
	if len(parts) == 0 {
		return "1 = 0", nil, nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", params, nil
}

func keyTypes(keys []plan.Key) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keys {
		if !seen[k.ObjectType] {
			seen[k.ObjectType] = true
			out = append(out, k.ObjectType)
		}
	}
	return out
}

// jsonPath quotes name as a single JSON path member.
func jsonPath(name string) string {
	return `$."` + strings.ReplaceAll(name, `"`, `\"`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// irValueToParam converts a scalar Value to a SQL parameter. Booleans bind
// as 0 or 1, which is what json_extract yields for JSON true and false.
func irValueToParam(v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.String:
		return string(val), nil
	case ir.Int:
		return int64(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Null, nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
