package driven

import (
	"context"
	"errors"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

// Transport opens sessions against sources of one protocol.
// Each transport type (http, ftp, sftp, local, s3) implements this interface.
type Transport interface {
	// Open connects to the source. The session is used by a single worker
	// for the duration of one task run and must be closed afterwards.
	Open(ctx context.Context, source domain.Source) (Session, error)
}

// Session is an open connection to a source.
type Session interface {
	// List enumerates the remote entries. Directory entries may be included
	// and are skipped by the caller.
	List(ctx context.Context) ([]domain.RemoteEntry, error)

	// NeedsSync reports whether the local copy at localPath is missing or stale.
	// It must return false once Fetch has completed for an unchanged entry.
	NeedsSync(localPath string, entry domain.RemoteEntry) bool

	// Fetch transfers entry to localPath, resuming from a partial copy when
	// the protocol allows it. It calls progress.Checkpoint at every chunk and
	// returns the checkpoint error unchanged when the task must yield.
	Fetch(ctx context.Context, entry domain.RemoteEntry, localPath string, progress Progress) error

	// Close releases the connection.
	Close() error
}

// Progress receives byte-level updates while an entry is fetched.
// *domain.SyncTask implements it.
type Progress interface {
	// Checkpoint returns domain.ErrTaskCancelled or domain.ErrTaskPaused
	// when the transfer must stop.
	Checkpoint() error

	// Transferred records n newly written bytes.
	Transferred(n int64)

	// FileProgress records done of total bytes for the current entry.
	FileProgress(done, total int64)
}

// TransportRegistry resolves a transport by type.
type TransportRegistry interface {
	// Get returns the transport for t or domain.ErrUnsupportedType.
	Get(t domain.TransportType) (Transport, error)

	// SupportedTypes returns all registered transport types.
	SupportedTypes() []domain.TransportType
}

// AbortError marks a fetch failure that must fail the whole task instead of
// being counted as a single failed entry.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string {
	return e.Err.Error()
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Abort wraps err in an AbortError. A nil err stays nil.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &AbortError{Err: err}
}

// IsAbort reports whether err carries an AbortError.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
