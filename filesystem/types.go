// Package filesystem defines the FileSystem capability contract that
// every synchronization substrate (native host filesystem, browser-local
// persistent store, sandboxed in-process filesystem) must satisfy, along
// with the shared data types that flow across that contract.
package filesystem

import "time"

// Kind identifies whether a filesystem entry is a file or a directory.
type Kind uint8

const (
	// KindFile indicates a regular file.
	KindFile Kind = iota
	// KindDirectory indicates a directory.
	KindDirectory
)

// String returns a human-readable representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Metadata describes a single filesystem entry as reported by
// GetMetadata. For directories, ContentHash is empty and SizeBytes is 0.
type Metadata struct {
	// Path is the root-relative, normalized path of the entry.
	Path string
	// Kind indicates whether the entry is a file or directory.
	Kind Kind
	// ContentHash is a deterministic digest of the file's byte content.
	// Empty for directories.
	ContentHash string
	// SizeBytes is the size of the file's content in bytes. Zero for
	// directories.
	SizeBytes int64
	// LastModifiedMillis is the entry's last-modification time, in
	// milliseconds since the Unix epoch.
	LastModifiedMillis int64
}

// LastModifiedTime returns LastModifiedMillis as a time.Time.
func (m Metadata) LastModifiedTime() time.Time {
	return time.UnixMilli(m.LastModifiedMillis)
}

// Item describes a single entry returned from a directory listing. It is
// a lighter-weight projection of Metadata that omits the content hash,
// since listing should not require reading file content.
type Item struct {
	// Path is the root-relative, normalized path of the entry.
	Path string
	// Kind indicates whether the entry is a file or directory.
	Kind Kind
	// LastModifiedMillis is the entry's last-modification time.
	LastModifiedMillis int64
	// SizeBytes is the size of the entry's content, if it is a file. It
	// is a pointer so that its absence (e.g. for a directory) can be
	// distinguished from a genuine zero-byte file.
	SizeBytes *int64
}
