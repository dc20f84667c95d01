// Package queue persists video jobs in SQLite and exposes helpers for driving
// their lifecycle.
//
// The Store holds both in-flight and finished jobs in one table; terminal
// statuses (completed, error) form the completed registry that status queries
// and retry operate on. Treat this package as the single source of truth for
// queue semantics; when you add statuses or fields, update schema.sql and bump
// schemaVersion.
package queue
