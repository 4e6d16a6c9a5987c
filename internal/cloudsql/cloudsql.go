// Package cloudsql resolves the Postgres connection string for both local
// development (DATABASE_URL) and Cloud Run with a mounted Cloud SQL socket.
package cloudsql

import (
	"fmt"
	"os"
	"strings"
)

// ResolveDatabaseURL returns the connection string the registry should use.
//
// DATABASE_URL wins when set. Otherwise INSTANCE_CONNECTION_NAME plus
// DB_USER/DB_PASSWORD/DB_NAME select the Unix socket Cloud Run mounts at
// /cloudsql/<instance>. An empty string with a nil error means no database
// is configured at all; callers may fall back to in-memory storage.
func ResolveDatabaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	socketPath := fmt.Sprintf("/cloudsql/%s", instance)
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, user, password, name), nil
	}
	// IAM authentication needs no password.
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, user, name), nil
}

// ConnectionInfo describes the resolved connection for startup logging,
// with the password redacted.
func ConnectionInfo() map[string]string {
	info := make(map[string]string)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		info["connection_type"] = "direct"
		info["database_url"] = redactPassword(dbURL)
	} else if instance := os.Getenv("INSTANCE_CONNECTION_NAME"); instance != "" {
		info["connection_type"] = "cloud_sql"
		info["instance"] = instance
		info["user"] = os.Getenv("DB_USER")
		info["database"] = os.Getenv("DB_NAME")
		info["socket_path"] = fmt.Sprintf("/cloudsql/%s", instance)
	} else {
		info["connection_type"] = "memory"
	}

	return info
}

func redactPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgresql://") || strings.HasPrefix(connStr, "postgres://") {
		parts := strings.SplitN(connStr, "@", 2)
		if len(parts) == 2 {
			userParts := strings.Split(parts[0], ":")
			if len(userParts) >= 3 {
				return userParts[0] + "://" + userParts[1] + ":***@" + parts[1]
			}
		}
	}
	return connStr
}
