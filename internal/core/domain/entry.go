package domain

import "time"

// RemoteEntry is one item listed by a transport.
type RemoteEntry struct {
	// Path is the slash-separated path relative to the source root.
	// It is also the path under the target directory.
	Path string

	// Size is the size in bytes. Zero means unknown for HTTP listings.
	Size int64

	// ModTime is the remote modification time, zero when unknown.
	ModTime time.Time

	// AccessTime is the remote access time, zero when unknown.
	AccessTime time.Time

	// IsDir marks directory entries. They are never fetched.
	IsDir bool

	// Location is the transport-specific locator (URL, remote path, object key).
	Location string
}
