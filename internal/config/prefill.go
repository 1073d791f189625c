package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DatabasePrefill describes the configured database connection without
// exposing credentials. The setup UI uses it to pre-populate its form.
type DatabasePrefill struct {
	DatabaseType        string `json:"database_type"`
	DatabaseHost        string `json:"database_host"`
	DatabasePort        int    `json:"database_port"`
	DatabaseUser        string `json:"database_user"`
	DatabaseName        string `json:"database_name"`
	DatabaseSSLMode     string `json:"database_ssl_mode"`
	DatabasePath        string `json:"database_path"`
	DatabasePasswordSet bool   `json:"database_password_set"`
}

// PrefillFromDSN classifies a DSN the same way the database layer does:
// postgres:// and postgresql:// URLs and key=value strings are PostgreSQL,
// anything else is a SQLite path (bare or file: URI).
func PrefillFromDSN(dsn string) (DatabasePrefill, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return DatabasePrefill{}, fmt.Errorf("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lowered, "postgres://"), strings.HasPrefix(lowered, "postgresql://"):
		return postgresPrefillFromURL(trimmed)
	case strings.Contains(lowered, "host=") && strings.Contains(lowered, "dbname="):
		return postgresPrefillFromKeywords(trimmed), nil
	default:
		return sqlitePrefill(trimmed), nil
	}
}

func sqlitePrefill(dsn string) DatabasePrefill {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	return DatabasePrefill{
		DatabaseType: "sqlite",
		DatabasePath: strings.TrimSpace(path),
	}
}

func postgresPrefillFromURL(dsn string) (DatabasePrefill, error) {
	u, errParse := url.Parse(dsn)
	if errParse != nil {
		return DatabasePrefill{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	port := 5432
	if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
		parsedPort, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return DatabasePrefill{}, fmt.Errorf("parse port: %w", errPort)
		}
		port = parsedPort
	}

	username := ""
	passwordSet := false
	if u.User != nil {
		username = strings.TrimSpace(u.User.Username())
		_, passwordSet = u.User.Password()
	}

	sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabasePrefill{
		DatabaseType:        "postgres",
		DatabaseHost:        strings.TrimSpace(u.Hostname()),
		DatabasePort:        port,
		DatabaseUser:        username,
		DatabaseName:        strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
		DatabaseSSLMode:     sslMode,
		DatabasePasswordSet: passwordSet,
	}, nil
}

// postgresPrefillFromKeywords parses the space-separated key=value DSN form,
// e.g. "host=db port=5432 user=app dbname=cloudez sslmode=require".
func postgresPrefillFromKeywords(dsn string) DatabasePrefill {
	values := map[string]string{}
	for _, field := range strings.Fields(dsn) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		values[strings.ToLower(key)] = value
	}

	port := 5432
	if parsedPort, errPort := strconv.Atoi(values["port"]); errPort == nil && parsedPort > 0 {
		port = parsedPort
	}
	sslMode := values["sslmode"]
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabasePrefill{
		DatabaseType:        "postgres",
		DatabaseHost:        values["host"],
		DatabasePort:        port,
		DatabaseUser:        values["user"],
		DatabaseName:        values["dbname"],
		DatabaseSSLMode:     sslMode,
		DatabasePasswordSet: values["password"] != "",
	}
}
