package database

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/koustreak/waaa/internal/errs"
)

// Fields lists the columns a select returns.
type Fields []string

// All selects every column.
var All = Fields{"*"}

func (f Fields) isAll() bool {
	return len(f) == 1 && f[0] == "*"
}

// SelectOptions are the optional clauses of a select. Zero values are
// omitted from the statement.
type SelectOptions struct {
	Where   map[string]any `mapstructure:"where"` // column=value pairs joined with "and"
	GroupBy []string       `mapstructure:"group"`
	OrderBy []string       `mapstructure:"order"` // "column" or "column asc|desc"
	Having  map[string]any `mapstructure:"having"`
	Limit   int            `mapstructure:"limit"`
}

// BuildSelect assembles a select statement with every filter value inlined
// as an escaped literal:
//
//	select a,b from users where active=true and id=1 order by id desc limit 10;
//
// Map keys are emitted in sorted order so the same input always yields the
// same text.
func BuildSelect(d Dialect, table string, fields Fields, opts *SelectOptions) (string, error) {
	stmt, err := buildSelect(d, table, fields, opts)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindBadStatement, "could not prepare statement", err)
	}
	return stmt, nil
}

func buildSelect(d Dialect, table string, fields Fields, opts *SelectOptions) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("no fields selected")
	}

	cols := "*"
	if !fields.isAll() {
		quoted := make([]string, len(fields))
		for i, f := range fields {
			q, err := quoteIdent(d, f)
			if err != nil {
				return "", err
			}
			quoted[i] = q
		}
		cols = strings.Join(quoted, ",")
	}

	tbl, err := quoteIdent(d, table)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if opts != nil {
		if len(opts.Where) > 0 {
			pairs, err := literalPairs(d, opts.Where)
			if err != nil {
				return "", err
			}
			sb.WriteString("where ")
			sb.WriteString(strings.Join(pairs, " and "))
		}

		if len(opts.GroupBy) > 0 {
			groups, err := identList(d, opts.GroupBy)
			if err != nil {
				return "", err
			}
			sb.WriteString(" group by ")
			sb.WriteString(strings.Join(groups, ","))
		}

		if len(opts.OrderBy) > 0 {
			terms, err := orderTerms(d, opts.OrderBy)
			if err != nil {
				return "", err
			}
			sb.WriteString(" order by ")
			sb.WriteString(strings.Join(terms, ","))
		}

		if len(opts.Having) > 0 {
			pairs, err := literalPairs(d, opts.Having)
			if err != nil {
				return "", err
			}
			sb.WriteString(" having ")
			sb.WriteString(strings.Join(pairs, ","))
		}

		if opts.Limit < 0 {
			return "", fmt.Errorf("negative limit %d", opts.Limit)
		}
		if opts.Limit > 0 {
			sb.WriteString(" limit ")
			sb.WriteString(strconv.Itoa(opts.Limit))
		}
	}

	return fmt.Sprintf("select %s from %s %s;", cols, tbl, sb.String()), nil
}

// BuildCall assembles a stored procedure call with escaped arguments:
//
//	CALL get_user(42,'bob');
func BuildCall(d Dialect, procedure string, args ...any) (string, error) {
	name, err := quoteIdent(d, procedure)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindBadStatement, "could not prepare statement", err)
	}
	lits := make([]string, len(args))
	for i, a := range args {
		lit, err := escapeLiteral(d, a)
		if err != nil {
			return "", errs.Wrap(errs.ErrKindBadStatement, "could not prepare statement", err)
		}
		lits[i] = lit
	}
	return fmt.Sprintf("CALL %s(%s);", name, strings.Join(lits, ",")), nil
}

// BuildInsert assembles a parameterized insert. Values are returned as args
// in column order.
func BuildInsert(d Dialect, table string, fields map[string]any) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, errs.New(errs.ErrKindBadStatement, "could not run insert query without fields").WithFatal(false)
	}
	tbl, err := quoteIdent(d, table)
	if err != nil {
		return "", nil, badStatement(err)
	}

	keys := sortedKeys(fields)
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		q, err := quoteIdent(d, k)
		if err != nil {
			return "", nil, badStatement(err)
		}
		cols[i] = q
		marks[i] = d.placeholder(i + 1)
		args[i] = fields[k]
	}

	stmt := fmt.Sprintf("insert into %s (%s) values (%s)", tbl, strings.Join(cols, ","), strings.Join(marks, ","))
	return stmt, args, nil
}

// BuildUpdate assembles a parameterized update. An empty where map is
// rejected; there is no unconditional update.
func BuildUpdate(d Dialect, table string, fields, where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, errs.New(errs.ErrKindBadStatement, "could not run update query without valid where params").WithFatal(false)
	}
	if len(fields) == 0 {
		return "", nil, errs.New(errs.ErrKindBadStatement, "could not run update query without fields").WithFatal(false)
	}
	tbl, err := quoteIdent(d, table)
	if err != nil {
		return "", nil, badStatement(err)
	}

	set, args, err := boundPairs(d, fields, 1)
	if err != nil {
		return "", nil, badStatement(err)
	}
	cond, whereArgs, err := boundPairs(d, where, len(args)+1)
	if err != nil {
		return "", nil, badStatement(err)
	}

	stmt := fmt.Sprintf("update %s set %s where %s", tbl, strings.Join(set, ","), strings.Join(cond, " and "))
	return stmt, append(args, whereArgs...), nil
}

// BuildDelete assembles a parameterized delete. An empty where map is
// rejected; there is no unconditional delete.
func BuildDelete(d Dialect, table string, where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, errs.New(errs.ErrKindBadStatement, "could not run delete query without valid where params").WithFatal(false)
	}
	tbl, err := quoteIdent(d, table)
	if err != nil {
		return "", nil, badStatement(err)
	}
	cond, args, err := boundPairs(d, where, 1)
	if err != nil {
		return "", nil, badStatement(err)
	}
	return fmt.Sprintf("delete from %s where %s", tbl, strings.Join(cond, " and ")), args, nil
}

func badStatement(err error) error {
	return errs.Wrap(errs.ErrKindBadStatement, "could not prepare statement", err).WithFatal(false)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// literalPairs renders col=literal for every entry of m.
func literalPairs(d Dialect, m map[string]any) ([]string, error) {
	keys := sortedKeys(m)
	out := make([]string, len(keys))
	for i, k := range keys {
		col, err := quoteIdent(d, k)
		if err != nil {
			return nil, err
		}
		lit, err := escapeLiteral(d, m[k])
		if err != nil {
			return nil, err
		}
		out[i] = col + "=" + lit
	}
	return out, nil
}

// boundPairs renders col=placeholder for every entry of m, numbering
// placeholders from start.
func boundPairs(d Dialect, m map[string]any, start int) ([]string, []any, error) {
	keys := sortedKeys(m)
	out := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		col, err := quoteIdent(d, k)
		if err != nil {
			return nil, nil, err
		}
		out[i] = col + "=" + d.placeholder(start+i)
		args[i] = m[k]
	}
	return out, args, nil
}

// identList accepts entries that are single columns or comma-separated
// lists of columns.
func identList(d Dialect, entries []string) ([]string, error) {
	var out []string
	for _, e := range entries {
		for _, part := range strings.Split(e, ",") {
			q, err := quoteIdent(d, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			out = append(out, q)
		}
	}
	return out, nil
}

func orderTerms(d Dialect, entries []string) ([]string, error) {
	var out []string
	for _, e := range entries {
		for _, part := range strings.Split(e, ",") {
			words := strings.Fields(part)
			if len(words) == 0 || len(words) > 2 {
				return nil, fmt.Errorf("invalid order term %q", part)
			}
			col, err := quoteIdent(d, words[0])
			if err != nil {
				return nil, err
			}
			if len(words) == 2 {
				dir := strings.ToLower(words[1])
				if dir != "asc" && dir != "desc" {
					return nil, fmt.Errorf("invalid sort direction %q", words[1])
				}
				col += " " + dir
			}
			out = append(out, col)
		}
	}
	return out, nil
}

// rowVerbs are the leading keywords of statements that produce a result set.
var rowVerbs = map[string]bool{
	"select":   true,
	"with":     true,
	"show":     true,
	"call":     true,
	"describe": true,
	"desc":     true,
	"explain":  true,
	"values":   true,
	"table":    true,
}

// ReturnsRows reports whether statement produces a result set, judged by its
// first keyword. Drivers use it to choose between a query and an exec round
// trip.
func ReturnsRows(statement string) bool {
	s := strings.TrimLeft(statement, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		s = s[:end]
	}
	return rowVerbs[strings.ToLower(s)]
}
