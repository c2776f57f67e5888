// Package local is the single-host jobstore.Store backend: a bbolt index
// for job records and file metadata, plus file content on disk. See
// local.go for the on-disk layout.
package local
