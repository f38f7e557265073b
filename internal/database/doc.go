// Package database provides the PostgreSQL connection pool used by the
// routing journal.
package database
