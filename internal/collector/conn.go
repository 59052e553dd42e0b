package collector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

type ConnConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func OpenDB(cfg ConnConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("host is required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("port is required")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return nil, errors.New("user is required")
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	c := mysql.NewConfig()
	c.Net = "tcp"
	c.Addr = addr
	c.User = cfg.User
	c.Passwd = cfg.Password
	if database := strings.TrimSpace(cfg.Database); database != "" {
		c.DBName = database
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	rwTimeout := cfg.ReadTimeout
	if rwTimeout <= 0 {
		rwTimeout = 2 * time.Minute
	}
	if cfg.WriteTimeout > rwTimeout {
		rwTimeout = cfg.WriteTimeout
	}

	c.Timeout = connectTimeout
	c.ReadTimeout = rwTimeout
	c.WriteTimeout = rwTimeout
	c.Params = map[string]string{
		"charset": "utf8mb4",
	}

	db, err := sql.Open("mysql", c.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(2 * time.Minute)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	return db, nil
}

func openAndPing(ctx context.Context, cfg ConnConfig) (*sql.DB, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// QueryVersion verifies connectivity and returns the server version string.
func QueryVersion(ctx context.Context, cfg ConnConfig) (string, error) {
	db, err := openAndPing(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

// queryRowsAsStringMaps scans any result set into lowercase-keyed string
// maps, tolerating schema drift across server versions.
func queryRowsAsStringMaps(
	ctx context.Context,
	db *sql.DB,
	query string,
	args ...any,
) ([]map[string]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	lowerColumns := make([]string, len(columns))
	for i := range columns {
		lowerColumns[i] = strings.ToLower(columns[i])
	}

	raw := make([]sql.RawBytes, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	out := make([]map[string]string, 0, 64)
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		item := make(map[string]string, len(columns))
		for i := range lowerColumns {
			if raw[i] == nil {
				item[lowerColumns[i]] = ""
				continue
			}
			item[lowerColumns[i]] = string(raw[i])
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func firstNonEmptyValue(row map[string]string, keys ...string) string {
	for i := range keys {
		value := strings.TrimSpace(row[strings.ToLower(keys[i])])
		if value == "" {
			continue
		}
		return value
	}
	return ""
}
