// Package postgres provides PostgreSQL implementations of the storage
// interfaces defined in internal/store, built on pgx. It also owns the schema,
// shipped as goose migrations embedded in the binary.
package postgres
