package repository

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
type whereBuilder struct {
	conds []string
	args  []any
}

// add appends a condition. format must contain exactly one %d, which
// becomes the placeholder number of v.
func (w *whereBuilder) add(format string, v any) {
	w.args = append(w.args, v)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

// raw appends a condition that takes no argument.
func (w *whereBuilder) raw(cond string) {
	w.conds = append(w.conds, cond)
}

// in appends "column IN ($n, ...)". An empty list matches nothing.
func (w *whereBuilder) in(column string, vals []string) {
	if len(vals) == 0 {
		w.raw("FALSE")
		return
	}
	ph := make([]string, len(vals))
	for i, v := range vals {
		w.args = append(w.args, v)
		ph[i] = fmt.Sprintf("$%d", len(w.args))
	}
	w.conds = append(w.conds, column+" IN ("+strings.Join(ph, ", ")+")")
}

// placeholder registers v and returns its placeholder, for LIMIT/OFFSET.
func (w *whereBuilder) placeholder(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// contains wraps s for a substring ILIKE match, escaping LIKE wildcards.
func contains(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// paginate appends LIMIT/OFFSET for page (1-based). limit <= 0 means no paging.
func (w *whereBuilder) paginate(page, limit int) string {
	if limit <= 0 {
		return ""
	}
	if page < 1 {
		page = 1
	}
	l := w.placeholder(limit)
	o := w.placeholder((page - 1) * limit)
	return " LIMIT " + l + " OFFSET " + o
}
