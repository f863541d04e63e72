package handlers

import (
	"database/sql"
	"errors"
	"net"
)

var (
	errInvalidRegex = errors.New("handlers: data is not a valid regex pattern")
	errInvalidIP    = errors.New("handlers: data is not a valid IP literal")
)

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseIP(s string) net.IP {
	if s == "" {
		return nil
	}
	return net.ParseIP(s)
}
