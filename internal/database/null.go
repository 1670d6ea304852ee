package database

import (
	"database/sql"
	"time"
)

// nullTimeToPtr converts a sql.NullTime to a pointer (nil if not valid)
func nullTimeToPtr(n sql.NullTime) *time.Time {
	if n.Valid {
		return &n.Time
	}
	return nil
}

// nullStringValue converts a sql.NullString to a string (empty if not valid)
func nullStringValue(n sql.NullString) string {
	if n.Valid {
		return n.String
	}
	return ""
}

// stringToNull converts an empty string to a SQL NULL
func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
