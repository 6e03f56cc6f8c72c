package morm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/inedumozey/morm/ast"
)

var kvDBNameRe = regexp.MustCompile(`(?i)\bdbname=(\S+)`)

// ensureDatabase issues CREATE DATABASE against the target's admin
// connection (the "postgres" maintenance database), swallowing the
// *already exists* error, per spec §6 init's idempotence requirement.
//
// Grounded on lib/pq — the same driver dbcatalog's alternate session
// backend, dbsession/pqsession, wraps — for this one-off admin
// connection: pgx's pool is reserved for the long-lived session the
// Engine keeps, while a throwaway database/sql connection suits a
// single CREATE DATABASE statement run outside any transaction.
func ensureDatabase(ctx context.Context, connString string) error {
	dbName, adminConnString, ok := splitDatabaseName(connString)
	if !ok || dbName == "" {
		return nil
	}

	db, err := sql.Open("postgres", adminConnString)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", ast.QuoteIdent(dbName)))
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return nil
	}
	return err
}

// splitDatabaseName extracts the target database name from either a
// postgres:// URL or a keyword/value DSN, returning an admin connection
// string pointed at the "postgres" maintenance database instead.
func splitDatabaseName(connString string) (dbName, adminConnString string, ok bool) {
	if u, err := url.Parse(connString); err == nil && strings.HasPrefix(u.Scheme, "postgres") {
		dbName = strings.TrimPrefix(u.Path, "/")
		admin := *u
		admin.Path = "/postgres"
		return dbName, admin.String(), true
	}

	if loc := kvDBNameRe.FindStringSubmatchIndex(connString); loc != nil {
		dbName = connString[loc[2]:loc[3]]
		adminConnString = connString[:loc[2]] + "postgres" + connString[loc[3]:]
		return dbName, adminConnString, true
	}

	return "", "", false
}
