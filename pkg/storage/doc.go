// Package storage holds task attachment contents.
//
// BlobStore has two implementations: FileSystemStore for single-node and
// development deployments, and S3Store for S3 or S3-compatible services such
// as MinIO. New selects one from configuration and wraps it with tracing
// spans and storage metrics.
//
//	blobs, err := storage.New(ctx, cfg.Storage, metrics)
//	key := storage.NewKey(orgID, taskID, header.Filename)
//	size, err := blobs.Save(ctx, key, file, header.Header.Get("Content-Type"))
//
// Attachment metadata lives in the database; only the bytes live here. Keys
// are namespaced by organization and task and never derived from user input
// beyond the file extension.
package storage
