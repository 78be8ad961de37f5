// Package store defines the persistence contract for per-client scan progress.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
