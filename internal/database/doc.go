// Package database opens the primary PostgreSQL connection described by the
// settings and owns the schema needed by the settings layer itself.
package database
