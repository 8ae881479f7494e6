package mysql

import (
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/waaa/internal/database"
)

const defaultPort = 3306

// buildConfig returns the driver config for one dedicated connection.
func buildConfig(cfg database.ConnectionConfig) *mysql.Config {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	c.DBName = cfg.Database
	c.ParseTime = true
	c.Timeout = cfg.ConnectTimeout
	return c
}

// buildDSN renders the connection string with the password masked, for logs.
func buildDSN(cfg database.ConnectionConfig) string {
	c := buildConfig(cfg)
	if c.Passwd != "" {
		c.Passwd = "xxxxx"
	}
	return c.FormatDSN()
}
