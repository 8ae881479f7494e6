package database

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/waaa/internal/errs"
)

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		table   string
		fields  Fields
		opts    *SelectOptions
		want    string
	}{
		{
			name:    "wildcard with limit",
			dialect: DialectMySQL,
			table:   "t",
			fields:  All,
			opts:    &SelectOptions{Limit: 5},
			want:    "select * from t  limit 5;",
		},
		{
			name:    "columns with where",
			dialect: DialectMySQL,
			table:   "t",
			fields:  Fields{"a", "b"},
			opts:    &SelectOptions{Where: map[string]any{"id": 1}},
			want:    "select a,b from t where id=1;",
		},
		{
			name:    "no options",
			dialect: DialectMySQL,
			table:   "users",
			fields:  All,
			want:    "select * from users ;",
		},
		{
			name:    "where keys sorted and joined with and",
			dialect: DialectMySQL,
			table:   "users",
			fields:  Fields{"id"},
			opts:    &SelectOptions{Where: map[string]any{"name": "bob", "active": true}},
			want:    "select id from users where active=true and name='bob';",
		},
		{
			name:    "every clause",
			dialect: DialectMySQL,
			table:   "orders",
			fields:  Fields{"user_id", "total"},
			opts: &SelectOptions{
				Where:   map[string]any{"status": "paid"},
				GroupBy: []string{"user_id"},
				OrderBy: []string{"total desc", "user_id"},
				Having:  map[string]any{"a": 1, "b": 2},
				Limit:   10,
			},
			want: "select user_id,total from orders where status='paid' group by user_id order by total desc,user_id having a=1,b=2 limit 10;",
		},
		{
			name:    "group and order accept comma lists",
			dialect: DialectPostgres,
			table:   "t",
			fields:  All,
			opts:    &SelectOptions{GroupBy: []string{"a, b"}, OrderBy: []string{"a ASC,b"}},
			want:    "select * from t  group by a,b order by a asc,b;",
		},
		{
			name:    "single odd column is quoted",
			dialect: DialectMySQL,
			table:   "t",
			fields:  Fields{"first name"},
			want:    "select `first name` from t ;",
		},
		{
			name:    "postgres quotes with double quotes",
			dialect: DialectPostgres,
			table:   "Order Items",
			fields:  Fields{"id"},
			opts:    &SelectOptions{Where: map[string]any{"note": "it's"}},
			want:    `select id from "Order Items" where note='it''s';`,
		},
		{
			name:    "slice value is comma-joined",
			dialect: DialectMySQL,
			table:   "users",
			fields:  Fields{"id"},
			opts:    &SelectOptions{Where: map[string]any{"id": []int{1, 2, 3}}},
			want:    "select id from users where id=1, 2, 3;",
		},
		{
			name:    "qualified column stays bare",
			dialect: DialectMySQL,
			table:   "users",
			fields:  Fields{"users.id"},
			want:    "select users.id from users ;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildSelect(tt.dialect, tt.table, tt.fields, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildSelect_BadStatement(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		fields Fields
		opts   *SelectOptions
	}{
		{"nil fields", "t", nil, nil},
		{"empty fields", "t", Fields{}, nil},
		{"empty column", "t", Fields{"a", ""}, nil},
		{"empty table", "", All, nil},
		{"bad order direction", "t", All, &SelectOptions{OrderBy: []string{"a sideways"}}},
		{"order injection", "t", All, &SelectOptions{OrderBy: []string{"a; drop table t"}}},
		{"negative limit", "t", All, &SelectOptions{Limit: -1}},
		{"unescapable value in list", "t", All, &SelectOptions{Where: map[string]any{"a": []any{1, math.Inf(-1)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildSelect(DialectMySQL, tt.table, tt.fields, tt.opts)
			require.Error(t, err)
			assert.True(t, errs.IsBadStatement(err))
			assert.True(t, errs.IsFatal(err))
			assert.Equal(t, errs.CodeBadStatement, errs.CodeOf(err))
		})
	}
}

func TestBuildCall(t *testing.T) {
	got, err := BuildCall(DialectMySQL, "get_user", 42, "bob")
	require.NoError(t, err)
	assert.Equal(t, "CALL get_user(42,'bob');", got)

	got, err = BuildCall(DialectMySQL, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, "CALL cleanup();", got)

	got, err = BuildCall(DialectPostgres, "touch", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "CALL touch(NULL,false);", got)

	_, err = BuildCall(DialectMySQL, "")
	assert.True(t, errs.IsBadStatement(err))
}

func TestBuildInsert(t *testing.T) {
	stmt, args, err := BuildInsert(DialectMySQL, "users", map[string]any{"name": "bob", "age": 30})
	require.NoError(t, err)
	assert.Equal(t, "insert into users (age,name) values (?,?)", stmt)
	assert.Equal(t, []any{30, "bob"}, args)

	stmt, args, err = BuildInsert(DialectPostgres, "users", map[string]any{"name": "bob", "age": 30})
	require.NoError(t, err)
	assert.Equal(t, "insert into users (age,name) values ($1,$2)", stmt)
	assert.Equal(t, []any{30, "bob"}, args)

	_, _, err = BuildInsert(DialectMySQL, "users", nil)
	assert.True(t, errs.IsBadStatement(err))
}

func TestBuildUpdate(t *testing.T) {
	stmt, args, err := BuildUpdate(DialectPostgres, "users",
		map[string]any{"name": "alice", "age": 31},
		map[string]any{"id": 7},
	)
	require.NoError(t, err)
	assert.Equal(t, "update users set age=$1,name=$2 where id=$3", stmt)
	assert.Equal(t, []any{31, "alice", 7}, args)
}

func TestBuildUpdateDelete_RequireWhere(t *testing.T) {
	for _, where := range []map[string]any{nil, {}} {
		_, _, err := BuildUpdate(DialectMySQL, "users", map[string]any{"a": 1}, where)
		require.Error(t, err)
		assert.True(t, errs.IsBadStatement(err))
		assert.False(t, errs.IsFatal(err))
		assert.Contains(t, err.Error(), "could not run update query without valid where params")

		_, _, err = BuildDelete(DialectMySQL, "users", where)
		require.Error(t, err)
		assert.True(t, errs.IsBadStatement(err))
		assert.False(t, errs.IsFatal(err))
		assert.Contains(t, err.Error(), "could not run delete query without valid where params")
	}
}

func TestBuildDelete(t *testing.T) {
	stmt, args, err := BuildDelete(DialectMySQL, "sessions", map[string]any{"user_id": 3, "kind": "web"})
	require.NoError(t, err)
	assert.Equal(t, "delete from sessions where kind=? and user_id=?", stmt)
	assert.Equal(t, []any{"web", 3}, args)
}

func TestEscapeLiteral_MySQL(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{true, "true"},
		{int64(-3), "-3"},
		{uint8(7), "7"},
		{1.5, "1.5"},
		{"plain", "'plain'"},
		{"it's", `'it\'s'`},
		{`back\slash`, `'back\\slash'`},
		{"line\nbreak\ttab", `'line\nbreak\ttab'`},
		{"nul\x00ctrlz\x1a", `'nul\0ctrlz\Z'`},
		{`say "hi"`, `'say \"hi\"'`},
		{[]byte{0xde, 0xad}, "X'dead'"},
		{time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "'2024-03-01 12:30:00'"},
		{[]int{1, 2}, "1, 2"},
		{[]any{1, "a'b", nil}, `1, 'a\'b', NULL`},
		{[]string{}, ""},
		{[]any{[]int{1, 2}, []string{"x"}}, "(1, 2), ('x')"},
		{[2]bool{true, false}, "true, false"},
		{[]any{[]byte{0x01}}, "X'01'"},
		{level("warn"), "'warn'"},
		{ptr(42), "42"},
		{(*int)(nil), "NULL"},
		{map[string]int{"a": 1}, "'map[a:1]'"},
		{struct{ A, B int }{1, 2}, "'{1 2}'"},
	}

	for _, tt := range tests {
		got, err := escapeLiteral(DialectMySQL, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}
}

func TestEscapeLiteral_Postgres(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"it's", "'it''s'"},
		{`a\b`, `E'a\\b'`},
		{`it's a\b`, `E'it''s a\\b'`},
		{[]byte{0x01}, `'\x01'::bytea`},
		{time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), "'2024-03-01T12:30:00Z'"},
		{[]int{1, 2}, "ARRAY[1,2]"},
		{[]any{"a", nil}, "ARRAY['a',NULL]"},
		{level("warn"), "'warn'"},
	}

	for _, tt := range tests {
		got, err := escapeLiteral(DialectPostgres, tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}

	_, err := escapeLiteral(DialectPostgres, "nul\x00")
	assert.True(t, errs.IsBadStatement(err))

	_, err = escapeLiteral(DialectPostgres, map[string]int{"a": 1})
	assert.True(t, errs.IsBadStatement(err))
}

type level string

func ptr[T any](v T) *T { return &v }

func TestEscapeLiteral_NonFinite(t *testing.T) {
	_, err := escapeLiteral(DialectMySQL, math.NaN())
	assert.True(t, errs.IsBadStatement(err))
	_, err = escapeLiteral(DialectMySQL, math.Inf(1))
	assert.True(t, errs.IsBadStatement(err))
}

func TestQuoteIdent(t *testing.T) {
	got, err := quoteIdent(DialectMySQL, "weird`name")
	require.NoError(t, err)
	assert.Equal(t, "`weird``name`", got)

	got, err = quoteIdent(DialectPostgres, `we"ird`)
	require.NoError(t, err)
	assert.Equal(t, `"we""ird"`, got)

	got, err = quoteIdent(DialectPostgres, "snake_case$1")
	require.NoError(t, err)
	assert.Equal(t, "snake_case$1", got)
}

func TestReturnsRows(t *testing.T) {
	for stmt, want := range map[string]bool{
		"select * from t;":              true,
		"  SELECT 1":                    true,
		"(select 1) union (select 2)":   true,
		"CALL get_user(1);":             true,
		"show tables":                   true,
		"with x as (select 1) select *": true,
		"insert into t (a) values (?)":  false,
		"update t set a=? where id=?":   false,
		"delete from t where id=?":      false,
		"":                              false,
	} {
		assert.Equal(t, want, ReturnsRows(stmt), stmt)
	}
}
