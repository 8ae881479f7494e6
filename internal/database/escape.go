package database

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/waaa/internal/errs"
)

// Dialect controls identifier quoting, literal escaping and the placeholder
// style the builder emits.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders.
	DialectMySQL
)

func (d Dialect) String() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "postgres"
}

// placeholder returns the parameter placeholder for the dialect.
// Postgres: $1, $2, …   MySQL: ? (index is ignored)
func (d Dialect) placeholder(idx int) string {
	if d == DialectMySQL {
		return "?"
	}
	return "$" + strconv.Itoa(idx)
}

// plainIdent matches identifiers that are emitted without quotes, optionally
// qualified by one table prefix.
var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)

// quoteIdent returns name ready for the statement text. Plain names are left
// bare so generated SQL stays readable; anything else is quoted with the
// dialect's identifier quote, doubling embedded quote characters.
func quoteIdent(d Dialect, name string) (string, error) {
	if name == "" {
		return "", errs.New(errs.ErrKindBadStatement, "empty identifier")
	}
	if strings.ContainsRune(name, 0) {
		return "", errs.Newf(errs.ErrKindBadStatement, "identifier %q contains NUL", name)
	}
	if plainIdent.MatchString(name) {
		return name, nil
	}
	if d == DialectPostgres {
		return pgx.Identifier{name}.Sanitize(), nil
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`", nil
}

// escapeLiteral renders v as a SQL literal for d. It is used where values
// end up inside the statement text (select filters, procedure arguments);
// insert, update and delete bind their values as args instead.
func escapeLiteral(d Dialect, v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case string:
		return escapeString(d, v)
	case []byte:
		if d == DialectMySQL {
			return "X'" + hex.EncodeToString(v) + "'", nil
		}
		return `'\x` + hex.EncodeToString(v) + `'::bytea`, nil
	case time.Time:
		if d == DialectMySQL {
			return escapeString(d, v.Format("2006-01-02 15:04:05.999999"))
		}
		return escapeString(d, v.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return escapeString(d, v.String())
	default:
		return escapeValue(d, reflect.ValueOf(v))
	}
}

// escapeValue covers pointers, named types and slices. A slice becomes a
// comma-joined list and a nested slice a parenthesized group; Postgres gets
// an ARRAY[...] instead. Anything else is escaped as its fmt text on MySQL
// and refused on Postgres.
func escapeValue(d Dialect, rv reflect.Value) (string, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "NULL", nil
		}
		return escapeLiteral(d, rv.Elem().Interface())
	case reflect.Bool:
		return escapeLiteral(d, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return formatFloat(rv.Float(), rv.Type().Bits())
	case reflect.String:
		return escapeString(d, rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "NULL", nil
		}
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return escapeLiteral(d, rv.Bytes())
		}
		return escapeList(d, rv)
	}
	if d == DialectMySQL {
		return escapeString(d, fmt.Sprint(rv.Interface()))
	}
	return "", errs.Newf(errs.ErrKindBadStatement, "cannot escape value of type %s", rv.Type())
}

func escapeList(d Dialect, rv reflect.Value) (string, error) {
	items := make([]string, rv.Len())
	for i := range items {
		el := rv.Index(i).Interface()
		lit, err := escapeLiteral(d, el)
		if err != nil {
			return "", err
		}
		if d == DialectMySQL && isList(el) {
			lit = "(" + lit + ")"
		}
		items[i] = lit
	}
	if d == DialectPostgres {
		return "ARRAY[" + strings.Join(items, ",") + "]", nil
	}
	return strings.Join(items, ", "), nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errs.Newf(errs.ErrKindBadStatement, "cannot escape non-finite number %v", f)
	}
	return strconv.FormatFloat(f, 'g', -1, bits), nil
}

var mysqlEscaper = strings.NewReplacer(
	"\x00", `\0`,
	"\b", `\b`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
	`"`, `\"`,
	`'`, `\'`,
	`\`, `\\`,
)

func escapeString(d Dialect, s string) (string, error) {
	if d == DialectMySQL {
		return "'" + mysqlEscaper.Replace(s) + "'", nil
	}
	if strings.ContainsRune(s, 0) {
		return "", errs.New(errs.ErrKindBadStatement, "postgres string literal cannot contain NUL")
	}
	s = strings.ReplaceAll(s, "'", "''")
	if strings.Contains(s, `\`) {
		return "E'" + strings.ReplaceAll(s, `\`, `\\`) + "'", nil
	}
	return "'" + s + "'", nil
}
