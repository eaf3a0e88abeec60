// Package queue persists image jobs in SQLite and exposes the lifecycle
// operations the pipeline and CLI build on: enqueueing with fingerprint
// dedupe, claiming the next workable item, progress updates, startup
// rollback of in-flight statuses, and savings aggregation.
package queue
