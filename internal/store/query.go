package store

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Cond is a single selector condition on a column.
type Cond struct {
	expr string
	args []any
}

// Eq matches documents whose column equals v.
func Eq(column string, v any) Cond {
	return Cond{expr: quote(column) + " = ?", args: []any{v}}
}

// Ne matches documents whose column differs from v.
func Ne(column string, v any) Cond {
	return Cond{expr: quote(column) + " <> ?", args: []any{v}}
}

// In matches documents whose column is one of values ($in). An empty list
// matches nothing.
func In[S ~string](column string, values []S) Cond {
	if len(values) == 0 {
		return Cond{expr: "1 = 0"}
	}
	args := make([]string, len(values))
	for i, v := range values {
		args[i] = string(v)
	}
	return Cond{expr: quote(column) + " IN ?", args: []any{args}}
}

// Exists matches documents where the column holds a non-empty value ($exists).
func Exists(column string) Cond {
	c := quote(column)
	return Cond{expr: fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", c, c)}
}

// NotExists is the negation of Exists.
func NotExists(column string) Cond {
	c := quote(column)
	return Cond{expr: fmt.Sprintf("(%s IS NULL OR %s = '')", c, c)}
}

// Query selects, orders and pages documents of a collection.
type Query struct {
	Conds  []Cond
	Sort   []string // e.g. "rank ASC"
	Limit  int
	Skip   int
	Fields []string
}

// Where starts a query from conditions, all of which must hold.
func Where(conds ...Cond) Query {
	return Query{Conds: conds}
}

// All matches every document.
func All() Query {
	return Query{}
}

// OrderBy appends sort clauses.
func (q Query) OrderBy(clauses ...string) Query {
	q.Sort = append(append([]string{}, q.Sort...), clauses...)
	return q
}

// Paginate sets limit and skip.
func (q Query) Paginate(limit, skip int) Query {
	q.Limit = limit
	q.Skip = skip
	return q
}

// Select restricts the loaded columns.
func (q Query) Select(fields ...string) Query {
	q.Fields = fields
	return q
}

func (q Query) apply(db *gorm.DB) *gorm.DB {
	for _, c := range q.Conds {
		db = db.Where(c.expr, c.args...)
	}
	for _, s := range q.Sort {
		db = db.Order(s)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	if q.Skip > 0 {
		db = db.Offset(q.Skip)
	}
	if len(q.Fields) > 0 {
		db = db.Select(q.Fields)
	}
	return db
}

func quote(column string) string {
	if strings.ContainsAny(column, "\"` ") {
		return column
	}
	return "\"" + column + "\""
}
