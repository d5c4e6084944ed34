// Package upload moves finished session files into staging files and
// delivers the staged data to the collector.
//
// Invariants:
// - A staging file is only visible under its final name once its content
//   is on disk; source session files are deleted after that.
// - At most one upload runs at a time per Uploader.
// - Staging files are deleted only after the collector accepted them.
//
// Usage:
//
//	stager := upload.NewStager(files, builder, writer.Locker())
//	up := upload.NewUploader(files, stager, upload.NewHTTPTransport(nil), upload.Options{URL: url, AppKey: key})
//	_, err := up.Flush(ctx)
package upload
