package surreal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/surrealdb/surrealdb.go/contrib/surrealql"

	"github.com/squidcloud/squid-go/pkg/client"
	"github.com/squidcloud/squid-go/pkg/constants"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var operators = map[client.Operator]string{
	client.OpEq:    "=",
	client.OpNeq:   "!=",
	client.OpLt:    "<",
	client.OpLte:   "<=",
	client.OpGt:    ">",
	client.OpGte:   ">=",
	client.OpIn:    "INSIDE",
	client.OpNotIn: "NOT INSIDE",
}

// window selects a slice of the ordered results.
type window struct {
	Start int
	Limit int
}

// statement is a parameterized SurrealQL query. When Local is set the
// backend cannot evaluate every condition, and the caller must run the
// descriptor's Apply over the rows (and cut the window) itself.
type statement struct {
	SQL   string
	Vars  map[string]any
	Local bool
}

// tableName maps a collection of an integration to a table.
func tableName(collection, integrationID string) (string, error) {
	if !identRe.MatchString(collection) || strings.Contains(collection, ".") {
		return "", fmt.Errorf("%w: invalid collection name %q", constants.ErrPrecondition, collection)
	}
	if integrationID == "" || integrationID == "built_in_db" {
		return collection, nil
	}
	if !identRe.MatchString(integrationID) || strings.Contains(integrationID, ".") {
		return "", fmt.Errorf("%w: invalid integration id %q", constants.ErrPrecondition, integrationID)
	}
	return integrationID + "__" + collection, nil
}

func buildSelect(q client.SerializedQuery, w *window) (statement, error) {
	if err := q.Validate(); err != nil {
		return statement{}, err
	}
	table, err := tableName(q.Collection, q.IntegrationID)
	if err != nil {
		return statement{}, err
	}

	var st statement
	sel := surrealql.Select("*").FromTable(table)
	for _, c := range q.Conditions {
		if !identRe.MatchString(c.Field) {
			return statement{}, fmt.Errorf("%w: invalid field %q", constants.ErrPrecondition, c.Field)
		}
		op, ok := operators[c.Op]
		if !ok {
			st.Local = true
			continue
		}
		sel = sel.Where(c.Field+" "+op+" ?", c.Value)
	}

	sorts := q.Sort
	if len(sorts) == 0 && w != nil {
		sorts = []client.SortOrder{{Field: "id", Asc: true}}
	}
	for _, s := range sorts {
		if !identRe.MatchString(s.Field) {
			return statement{}, fmt.Errorf("%w: invalid sort field %q", constants.ErrPrecondition, s.Field)
		}
		if s.Asc {
			sel = sel.OrderBy(s.Field)
		} else {
			sel = sel.OrderByDesc(s.Field)
		}
	}

	if !st.Local {
		limit, start := q.Limit, 0
		if w != nil {
			start = w.Start
			limit = w.Limit
			if q.Limit > 0 && start+limit > q.Limit {
				limit = max(q.Limit-start, 0)
			}
		}
		if limit > 0 || (w != nil && q.Limit > 0) {
			sel = sel.Limit(limit)
		}
		if start > 0 {
			sel = sel.Start(start)
		}
	}

	st.SQL, st.Vars = sel.Build()
	if st.Vars == nil {
		st.Vars = map[string]any{}
	}
	return st, nil
}

// selectRecord reads the record id of table.
func selectRecord(table, id string) (string, map[string]any) {
	return surrealql.SelectFrom(surrealql.Thing(table, id)).Build()
}

// finish runs the part of q the backend could not evaluate.
func (st statement) finish(q client.SerializedQuery, rows []client.DocumentData, w *window) []client.DocumentData {
	if !st.Local {
		return rows
	}
	rows = q.Apply(rows)
	if w == nil {
		return rows
	}
	if w.Start >= len(rows) {
		return []client.DocumentData{}
	}
	end := min(w.Start+w.Limit, len(rows))
	return rows[w.Start:end]
}

const (
	jobTable     = "squid_job"
	historyTable = "squid_agent_history"
	queuePrefix  = "squid_queue__"
)
