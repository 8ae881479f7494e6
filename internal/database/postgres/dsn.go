package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/koustreak/waaa/internal/database"
)

const defaultPort = 5432

// buildConfig parses the connection settings into a pgx config for one
// dedicated connection.
func buildConfig(cfg database.ConnectionConfig) (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(buildDSN(cfg, false))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	return connCfg, nil
}

// buildDSN constructs the keyword/value connection string. With mask set the
// password is replaced for logging.
func buildDSN(cfg database.ConnectionConfig, mask bool) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	password := cfg.Password
	if mask && password != "" {
		password = "xxxxx"
	}

	parts := []string{
		"host=" + dsnValue(cfg.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + dsnValue(cfg.User),
	}
	if password != "" {
		parts = append(parts, "password="+dsnValue(password))
	}
	if cfg.Database != "" {
		parts = append(parts, "dbname="+dsnValue(cfg.Database))
	}
	parts = append(parts, "sslmode="+dsnValue(sslMode))
	return strings.Join(parts, " ")
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// dsnValue quotes values that would otherwise break the keyword/value format.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + dsnEscaper.Replace(v) + "'"
}
