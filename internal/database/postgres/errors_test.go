package postgres

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
		code string
	}{
		{"canceled", context.Canceled, errs.ErrKindTimeout, errs.CodeTimeout},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound, errs.CodeNotFound},
		{"bad password", &pgconn.PgError{Code: "28P01"}, errs.ErrKindPermissionDenied, "28P01"},
		{"privilege", &pgconn.PgError{Code: "42501"}, errs.ErrKindPermissionDenied, "42501"},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, errs.ErrKindQueryFailed, "42P01"},
		{"unique violation", &pgconn.PgError{Code: "23505"}, errs.ErrKindQueryFailed, "23505"},
		{"too many connections", &pgconn.PgError{Code: "53300"}, errs.ErrKindConnectionFailed, "53300"},
		{"connection class", &pgconn.PgError{Code: "08006"}, errs.ErrKindConnectionFailed, "08006"},
		{"eof", io.EOF, errs.ErrKindConnectionFailed, database.CodeConnectionLost},
		{"other", errors.New("boom"), errs.ErrKindConnectionFailed, errs.CodeConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			assert.Equal(t, tt.kind, errs.KindOf(got))
			assert.Equal(t, tt.code, errs.CodeOf(got))
			assert.True(t, errors.Is(got, tt.err))
		})
	}

	assert.Nil(t, mapError(nil, "op"))
}

func TestIsConnectionLost(t *testing.T) {
	for _, err := range []error{
		io.EOF,
		io.ErrUnexpectedEOF,
		&pgconn.PgError{Code: "57P01"},
		&pgconn.PgError{Code: "57P02"},
		&pgconn.PgError{Code: "08003"},
	} {
		assert.True(t, isConnectionLost(err), "%v", err)
	}

	for _, err := range []error{
		nil,
		&pgconn.PgError{Code: "42601"},
		&pgconn.PgError{Code: "28P01", Severity: "FATAL"},
		errors.New("boom"),
	} {
		assert.False(t, isConnectionLost(err), "%v", err)
	}
}

func TestDriverError(t *testing.T) {
	de := driverError(&pgconn.PgError{Code: "57P01", Severity: "FATAL"})
	assert.True(t, de.ConnectionLost())

	de = driverError(&pgconn.PgError{Code: "3D000", Severity: "FATAL"})
	assert.Equal(t, "3D000", de.Code)
	assert.True(t, de.Fatal)
	assert.False(t, de.ConnectionLost())

	de = driverError(&pgconn.PgError{Code: "22012", Severity: "ERROR"})
	assert.False(t, de.Fatal)

	de = driverError(errors.New("boom"))
	assert.Equal(t, "UNKNOWN", de.Code)
	assert.False(t, de.Fatal)
}
