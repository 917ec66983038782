// Package blobstore abstracts durable storage for persisted stashes and
// published recommendation sets.
//
// The pipeline's intermediate state lives in a run-scoped temporary
// directory and is reclaimed at run end; anything that should outlive the
// run is copied to a Store. LocalStore writes to the file system with
// temp-file-and-rename atomicity, MemoryStore backs tests, and the s3 and
// minio subpackages target object storage.
package blobstore
