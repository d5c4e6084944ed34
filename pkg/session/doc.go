// Package session writes the open, event and close records of the current
// session to its own append-only file.
//
// Invariants:
// - At most one session is open per Writer.
// - Records of a session are appended in call order.
// - Every mutation holds the Writer's lock, which the upload stager also
//   takes before it reads session files.
//
// Usage:
//
//	w := session.NewWriter(files)
//	_, _ = w.Open(ctx, appKey)
//	_ = w.TagEvent(ctx, "Launched", map[string]string{"source": "cli"})
//	_ = w.Close(ctx)
package session
