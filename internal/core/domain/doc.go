// Package domain defines the core business entities for mirrorsync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Source: A remote location mirrored into local storage
//   - SyncTask: One execution of a source sync and its state machine
//   - RemoteEntry: An item listed by a transport
//   - HistoryEntry: The recorded outcome of a finished task
//
// # Task States
//
//	pending -> running -> paused | stopping | completed | failed
//	stopping -> cancelled
//	paused -> running (resume)
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
