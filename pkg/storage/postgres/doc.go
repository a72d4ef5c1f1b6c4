// Package postgres manages the PostgreSQL connection pool and provides the
// transaction helper used by every store that mutates cross-entity state.
package postgres
