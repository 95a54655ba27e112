package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"atlas/pkg/dbmanager"
)

// Row is one result row keyed by column name.
type Row = map[string]interface{}

type WhereCond struct {
	Logical string // "AND" or "OR"
	Column  string
	// Columns replaces Column for tuple comparisons; Value then holds one
	// tuple for "=" or a list of tuples for "IN" / "NOT IN".
	Columns []string
	Op      string
	Value   interface{}
}

type JoinOn struct {
	Left, Op, Right string
}

type JoinDef struct {
	Type  string // "INNER", "LEFT", "RIGHT"
	Table string
	On    []JoinOn
}

type OrderDef struct {
	Column    string
	Direction string
}

// QueryState is the mutable description of one SQL statement. Mappers hold it
// behind copy-on-write, so anything sharing a QueryState must Clone it first.
type QueryState struct {
	Table    string
	Columns  []string
	Distinct bool
	Joins    []JoinDef
	Where    []WhereCond
	GroupBy  []string
	Having   []WhereCond
	OrderBy  []OrderDef
	Limit    int
	Offset   int
	Dialect  dbmanager.Dialect
}

func (qs *QueryState) Clone() *QueryState {
	c := *qs
	c.Columns = append([]string(nil), qs.Columns...)
	c.Joins = make([]JoinDef, len(qs.Joins))
	for i, j := range qs.Joins {
		j.On = append([]JoinOn(nil), j.On...)
		c.Joins[i] = j
	}
	if qs.Joins == nil {
		c.Joins = nil
	}
	c.Where = cloneConds(qs.Where)
	c.GroupBy = append([]string(nil), qs.GroupBy...)
	c.Having = cloneConds(qs.Having)
	c.OrderBy = append([]OrderDef(nil), qs.OrderBy...)
	return &c
}

func cloneConds(conds []WhereCond) []WhereCond {
	if conds == nil {
		return nil
	}
	out := make([]WhereCond, len(conds))
	for i, c := range conds {
		c.Columns = append([]string(nil), c.Columns...)
		if len(c.Columns) == 0 {
			c.Columns = nil
		}
		out[i] = c
	}
	return out
}

// Quote quotes an identifier, a table.column pair, a "*" wildcard or a
// "column AS alias" expression. Anything containing parentheses is raw SQL.
func (qs *QueryState) Quote(name string) string {
	if strings.Contains(name, "(") {
		return name
	}
	if idx := strings.Index(strings.ToLower(name), " as "); idx > 0 {
		return qs.Quote(strings.TrimSpace(name[:idx])) + " AS " + qs.Dialect.QuoteIdentifier(strings.TrimSpace(name[idx+4:]))
	}
	if strings.Contains(name, " ") {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = qs.Dialect.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (qs *QueryState) BuildSQL(queryType string) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	// 1. SELECT
	switch queryType {
	case "SELECT":
		sb.WriteString("SELECT ")
		if qs.Distinct {
			sb.WriteString("DISTINCT ")
		}
		if len(qs.Columns) > 0 {
			quotedCols := make([]string, len(qs.Columns))
			for i, c := range qs.Columns {
				quotedCols[i] = qs.Quote(c)
			}
			sb.WriteString(strings.Join(quotedCols, ", "))
		} else if len(qs.Joins) > 0 {
			sb.WriteString(qs.Quote(qs.Table + ".*"))
		} else {
			sb.WriteString("*")
		}
	case "COUNT":
		sb.WriteString("SELECT COUNT(*)")
	case "DELETE":
		sb.WriteString("DELETE")
	}

	// 2. FROM
	sb.WriteString(" FROM ")
	sb.WriteString(qs.Dialect.QuoteIdentifier(qs.Table))

	// 3. JOINS
	for _, join := range qs.Joins {
		ons := make([]string, len(join.On))
		for i, on := range join.On {
			ons[i] = fmt.Sprintf("%s %s %s", qs.Quote(on.Left), on.Op, qs.Quote(on.Right))
		}
		sb.WriteString(fmt.Sprintf(" %s JOIN %s ON %s", join.Type, qs.Quote(join.Table), strings.Join(ons, " AND ")))
	}

	// 4. WHERE
	if len(qs.Where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(qs.buildConditions(qs.Where, &args))
	}

	// 5. GROUP BY
	if len(qs.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		quotedGB := make([]string, len(qs.GroupBy))
		for i, c := range qs.GroupBy {
			quotedGB[i] = qs.Quote(c)
		}
		sb.WriteString(strings.Join(quotedGB, ", "))
	}

	// 6. HAVING
	if len(qs.Having) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(qs.buildConditions(qs.Having, &args))
	}

	if queryType == "SELECT" {
		// 7. ORDER BY
		if len(qs.OrderBy) > 0 {
			parts := make([]string, len(qs.OrderBy))
			for i, o := range qs.OrderBy {
				parts[i] = qs.Quote(o.Column)
				if o.Direction != "" {
					parts[i] += " " + strings.ToUpper(o.Direction)
				}
			}
			sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
		}

		// 8. LIMIT / OFFSET
		sb.WriteString(qs.Dialect.Limit(qs.Limit, qs.Offset))
	}

	return sb.String(), args
}

// BuildInsert renders an INSERT for data with columns in sorted order.
// returning is only honoured by PostgreSQL.
func (qs *QueryState) BuildInsert(data Row, returning []string) (string, []interface{}) {
	cols := sortedColumns(data)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		quoted[i] = qs.Dialect.QuoteIdentifier(c)
		placeholders[i] = qs.Dialect.Placeholder(i + 1)
		args[i] = data[c]
	}

	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", qs.Dialect.QuoteIdentifier(qs.Table))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			qs.Dialect.QuoteIdentifier(qs.Table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	}

	if len(returning) > 0 && qs.Dialect.Name() == "postgres" {
		ret := make([]string, len(returning))
		for i, r := range returning {
			ret[i] = qs.Dialect.QuoteIdentifier(r)
		}
		query += " RETURNING " + strings.Join(ret, ", ")
	}
	return query, args
}

// BuildUpdate renders an UPDATE restricted by the state's WHERE conditions.
func (qs *QueryState) BuildUpdate(data Row) (string, []interface{}) {
	cols := sortedColumns(data)
	var args []interface{}
	sets := make([]string, len(cols))
	for i, c := range cols {
		args = append(args, data[c])
		sets[i] = fmt.Sprintf("%s = %s", qs.Dialect.QuoteIdentifier(c), qs.Dialect.Placeholder(len(args)))
	}

	query := fmt.Sprintf("UPDATE %s SET %s", qs.Dialect.QuoteIdentifier(qs.Table), strings.Join(sets, ", "))
	if len(qs.Where) > 0 {
		query += " WHERE " + qs.buildConditions(qs.Where, &args)
	}
	return query, args
}

func sortedColumns(data Row) []string {
	cols := make([]string, 0, len(data))
	for c := range data {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (qs *QueryState) placeholder(args *[]interface{}, v interface{}) string {
	*args = append(*args, v)
	return qs.Dialect.Placeholder(len(*args))
}

func (qs *QueryState) buildConditions(conds []WhereCond, args *[]interface{}) string {
	var sb strings.Builder
	for i, cond := range conds {
		if i > 0 {
			logical := cond.Logical
			if logical == "" {
				logical = "AND"
			}
			sb.WriteString(fmt.Sprintf(" %s ", logical))
		}
		sb.WriteString(qs.buildCondition(cond, args))
	}
	return sb.String()
}

func (qs *QueryState) buildCondition(cond WhereCond, args *[]interface{}) string {
	op := strings.ToUpper(cond.Op)

	if len(cond.Columns) > 0 {
		return qs.buildTupleCondition(cond, op, args)
	}

	switch op {
	case "IN", "NOT IN":
		slice := toSlice(cond.Value)
		if len(slice) == 0 {
			// Empty membership never matches; empty exclusion always does.
			if op == "IN" {
				return "1 = 0"
			}
			return "1 = 1"
		}
		placeholders := make([]string, len(slice))
		for j, v := range slice {
			placeholders[j] = qs.placeholder(args, v)
		}
		return fmt.Sprintf("%s %s (%s)", qs.Quote(cond.Column), op, strings.Join(placeholders, ", "))

	case "BETWEEN", "NOT BETWEEN":
		slice := toSlice(cond.Value)
		if len(slice) < 2 {
			return "1 = 0"
		}
		p1 := qs.placeholder(args, slice[0])
		p2 := qs.placeholder(args, slice[1])
		return fmt.Sprintf("%s %s %s AND %s", qs.Quote(cond.Column), op, p1, p2)

	case "NULL":
		return fmt.Sprintf("%s IS NULL", qs.Quote(cond.Column))

	case "NOT NULL":
		return fmt.Sprintf("%s IS NOT NULL", qs.Quote(cond.Column))
	}

	if cond.Value == nil && (op == "=" || op == "") {
		return fmt.Sprintf("%s IS NULL", qs.Quote(cond.Column))
	}
	if op == "" {
		op = "="
	}
	return fmt.Sprintf("%s %s %s", qs.Quote(cond.Column), cond.Op, qs.placeholder(args, cond.Value))
}

func (qs *QueryState) buildTupleCondition(cond WhereCond, op string, args *[]interface{}) string {
	equalAll := func(tuple []interface{}) string {
		parts := make([]string, len(cond.Columns))
		for i, col := range cond.Columns {
			var v interface{}
			if i < len(tuple) {
				v = tuple[i]
			}
			parts[i] = fmt.Sprintf("%s = %s", qs.Quote(col), qs.placeholder(args, v))
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	}

	switch op {
	case "IN", "NOT IN":
		tuples := toSlice(cond.Value)
		if len(tuples) == 0 {
			if op == "IN" {
				return "1 = 0"
			}
			return "1 = 1"
		}

		if qs.Dialect.SupportsRowValues() {
			cols := make([]string, len(cond.Columns))
			for i, c := range cond.Columns {
				cols[i] = qs.Quote(c)
			}
			groups := make([]string, len(tuples))
			for i, t := range tuples {
				tuple := toSlice(t)
				ph := make([]string, len(cond.Columns))
				for j := range cond.Columns {
					var v interface{}
					if j < len(tuple) {
						v = tuple[j]
					}
					ph[j] = qs.placeholder(args, v)
				}
				groups[i] = "(" + strings.Join(ph, ", ") + ")"
			}
			return fmt.Sprintf("(%s) %s (%s)", strings.Join(cols, ", "), op, strings.Join(groups, ", "))
		}

		alts := make([]string, len(tuples))
		for i, t := range tuples {
			alts[i] = equalAll(toSlice(t))
		}
		expr := "(" + strings.Join(alts, " OR ") + ")"
		if op == "NOT IN" {
			return "NOT " + expr
		}
		return expr
	}

	return equalAll(toSlice(cond.Value))
}

func toSlice(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return []interface{}{v}
	}
	if _, isBytes := v.([]byte); isBytes {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for k := 0; k < rv.Len(); k++ {
		out[k] = rv.Index(k).Interface()
	}
	return out
}
