// Package storage is the flat-directory file store behind the telemetry
// queue.
//
// Invariants:
// - The directory is resolved once per Store and never re-resolved.
// - Listing is name-ordered and tolerates a missing directory.
// - Appends are fsynced before returning; callers serialise writers to the
//   same file name.
//
// Usage:
//
//	store := storage.New(storage.StaticDir("/tmp/tally"))
//	_ = store.AppendText("s_123", "{...}\n")
//	for file, err := range store.List("s_") {
//		_ = file
//		_ = err
//	}
package storage
