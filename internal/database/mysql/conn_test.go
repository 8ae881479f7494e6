package mysql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/waaa/internal/database"
	"github.com/koustreak/waaa/internal/errs"
)

func testConfig() database.ConnectionConfig {
	return database.ConnectionConfig{
		Name:           "main",
		Driver:         database.DriverMySQL,
		Host:           "db.local",
		User:           "app",
		Password:       "secret",
		Database:       "shop",
		ConnectTimeout: time.Second,
		PingInterval:   -1,
	}
}

func newMockConn(t *testing.T, cfg database.ConnectionConfig) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	c := newConn(cfg, func(context.Context) (*sql.DB, error) { return db, nil })
	require.NoError(t, c.Connect(context.Background()))
	return c, mock
}

func TestConn_SelectReturnsRows(t *testing.T) {
	c, mock := newMockConn(t, testConfig())

	mock.ExpectQuery("select id,name from users where id=1;").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "alice"))
	mock.ExpectClose()

	res, err := c.Exec(context.Background(), "select id,name from users where id=1;")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, database.Row{"id": int64(1), "name": "alice"}, res.First())

	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConn_ExecReportsAffectedRows(t *testing.T) {
	c, mock := newMockConn(t, testConfig())

	mock.ExpectExec("insert into users (name) values (?)").
		WithArgs("bob").
		WillReturnResult(sqlmock.NewResult(7, 1))

	res, err := c.Exec(context.Background(), "insert into users (name) values (?)", "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.LastInsertID)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)

	assert.NoError(t, mock.ExpectationsWereMet())
	_ = c.Close()
}

func TestConn_ServerErrorKeepsSession(t *testing.T) {
	c, mock := newMockConn(t, testConfig())

	mock.ExpectQuery("select * from missing ;").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'shop.missing' doesn't exist"})

	_, err := c.Exec(context.Background(), "select * from missing ;")
	require.Error(t, err)
	assert.True(t, errs.IsQueryFailed(err))
	assert.Equal(t, "ER_NO_SUCH_TABLE", errs.CodeOf(err))

	select {
	case e := <-c.Errors():
		t.Fatalf("unexpected driver error %v", e)
	default:
	}
	_ = c.Close()
}

func TestConn_AccessDeniedStaysWithCaller(t *testing.T) {
	c, mock := newMockConn(t, testConfig())

	mock.ExpectQuery("select * from secrets ;").
		WillReturnError(&mysql.MySQLError{Number: 1045, Message: "Access denied for user 'app'@'%'"})

	_, err := c.Exec(context.Background(), "select * from secrets ;")
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err))
	assert.False(t, database.IsConnectionLost(err))

	select {
	case e := <-c.Errors():
		t.Fatalf("unexpected driver error %v", e)
	default:
	}
	_ = c.Close()
}

func TestConn_LostConnectionIsReported(t *testing.T) {
	c, mock := newMockConn(t, testConfig())

	mock.ExpectExec("delete from t where id=?").
		WithArgs(1).
		WillReturnError(mysql.ErrInvalidConn)

	_, err := c.Exec(context.Background(), "delete from t where id=?", 1)
	require.Error(t, err)
	assert.Equal(t, database.CodeConnectionLost, errs.CodeOf(err))

	select {
	case e := <-c.Errors():
		var de *database.DriverError
		require.True(t, errors.As(e, &de))
		assert.True(t, de.ConnectionLost())
	case <-time.After(time.Second):
		t.Fatal("connection loss was not reported")
	}
	_ = c.Close()
}

func TestConn_ExecBeforeConnect(t *testing.T) {
	c := New(testConfig())
	_, err := c.Exec(context.Background(), "select 1")
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))
	assert.NoError(t, c.Close())
}

func TestConn_ConnectFailures(t *testing.T) {
	c := newConn(testConfig(), func(context.Context) (*sql.DB, error) {
		return nil, errors.New("bad config")
	})
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err))

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(&mysql.MySQLError{Number: 1045, Message: "Access denied for user 'app'"})

	c = newConn(testConfig(), func(context.Context) (*sql.DB, error) { return db, nil })
	err = c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err))
	assert.Equal(t, "ER_ACCESS_DENIED_ERROR", errs.CodeOf(err))
}

func TestConn_KeepaliveReportsLoss(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(mysql.ErrInvalidConn)

	cfg := testConfig()
	cfg.PingInterval = 5 * time.Millisecond
	c := newConn(cfg, func(context.Context) (*sql.DB, error) { return db, nil })
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	select {
	case e := <-c.Errors():
		var de *database.DriverError
		require.True(t, errors.As(e, &de))
		assert.True(t, de.ConnectionLost())
	case <-time.After(2 * time.Second):
		t.Fatal("keepalive did not report the lost connection")
	}
}

func TestBuildDSN_MasksPassword(t *testing.T) {
	dsn := buildDSN(testConfig())
	assert.Contains(t, dsn, "app:xxxxx@tcp(db.local:3306)/shop")
	assert.NotContains(t, dsn, "secret")

	cfg := testConfig()
	cfg.Port = 3307
	c := buildConfig(cfg)
	assert.Equal(t, "db.local:3307", c.Addr)
	assert.Equal(t, "secret", c.Passwd)
	assert.True(t, c.ParseTime)
}

func TestDialer(t *testing.T) {
	var d database.Dialer = Dialer{}
	conn := d.Dial(testConfig())
	_, ok := conn.(*Conn)
	assert.True(t, ok)
}
