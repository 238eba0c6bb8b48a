package ftp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	goftp "github.com/jlaffaye/ftp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// mockConn implements conn for testing.
type mockConn struct {
	dirs       map[string][]*goftp.Entry
	files      map[string][]byte
	offsets    []uint64
	quitCalls  int
	abortCalls atomic.Int32

	// stall, when set, serves its bytes and then blocks until Abort.
	stall []byte
	pipe  *io.PipeWriter
}

func (m *mockConn) List(p string) ([]*goftp.Entry, error) {
	entries, ok := m.dirs[p]
	if !ok {
		return nil, errors.New("550 no such directory")
	}
	return entries, nil
}

func (m *mockConn) RetrFrom(p string, offset uint64) (io.ReadCloser, error) {
	data, ok := m.files[p]
	if !ok {
		return nil, errors.New("550 file unavailable")
	}
	m.offsets = append(m.offsets, offset)
	if m.stall != nil {
		r, w := io.Pipe()
		m.pipe = w
		go func() { _, _ = w.Write(m.stall) }()
		return r, nil
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func (m *mockConn) Abort() {
	m.abortCalls.Add(1)
	if m.pipe != nil {
		_ = m.pipe.CloseWithError(errors.New("use of closed network connection"))
	}
}

func (m *mockConn) Quit() error {
	m.quitCalls++
	return nil
}

// ftpTestProgress implements driven.Progress for testing.
type ftpTestProgress struct {
	transferred int64
}

func (p *ftpTestProgress) Checkpoint() error       { return nil }
func (p *ftpTestProgress) Transferred(n int64)     { p.transferred += n }
func (p *ftpTestProgress) FileProgress(_, _ int64) {}

func newMockConn() *mockConn {
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &mockConn{
		dirs: map[string][]*goftp.Entry{
			"/pub": {
				{Name: ".", Type: goftp.EntryTypeFolder},
				{Name: "..", Type: goftp.EntryTypeFolder},
				{Name: "README", Type: goftp.EntryTypeFile, Size: 6, Time: mtime},
				{Name: "dists", Type: goftp.EntryTypeFolder},
				{Name: "latest", Type: goftp.EntryTypeLink, Target: "dists"},
			},
			"/pub/dists": {
				{Name: "Release", Type: goftp.EntryTypeFile, Size: 10, Time: mtime},
			},
		},
		files: map[string][]byte{
			"/pub/README":        []byte("hello\n"),
			"/pub/dists/Release": []byte("0123456789"),
		},
	}
}

func openSession(t *testing.T, fs afero.Fs, c *mockConn, remotePath string) driven.Session {
	t.Helper()
	tr := New(fs)
	tr.dial = func(context.Context, domain.Source) (conn, error) { return c, nil }
	session, err := tr.Open(context.Background(), domain.Source{
		Name: "ftp", Type: domain.TransportFTP, Endpoint: "ftp.example.com",
		Options: map[string]string{"remote_path": remotePath},
	})
	require.NoError(t, err)
	return session
}

func TestOpen_DialError(t *testing.T) {
	tr := New(afero.NewMemMapFs())
	tr.dial = func(context.Context, domain.Source) (conn, error) { return nil, errors.New("connection refused") }

	_, err := tr.Open(context.Background(), domain.Source{Endpoint: "ftp.example.com"})

	assert.EqualError(t, err, "connection refused")
}

func TestDial_InvalidTimeout(t *testing.T) {
	_, err := dial(context.Background(), domain.Source{
		Endpoint: "ftp.example.com", Options: map[string]string{"timeout": "-1"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestList_Recursive(t *testing.T) {
	c := newMockConn()
	session := openSession(t, afero.NewMemMapFs(), c, "pub")

	entries, err := session.List(context.Background())
	require.NoError(t, err)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	require.Len(t, entries, 2)
	assert.Equal(t, "README", entries[0].Path)
	assert.Equal(t, "/pub/README", entries[0].Location)
	assert.Equal(t, int64(6), entries[0].Size)
	assert.Equal(t, "dists/Release", entries[1].Path)
	assert.Equal(t, "/pub/dists/Release", entries[1].Location)

	require.NoError(t, session.Close())
	assert.Equal(t, 1, c.quitCalls)
}

func TestList_RootPath(t *testing.T) {
	c := newMockConn()
	c.dirs["/"] = []*goftp.Entry{{Name: "pub", Type: goftp.EntryTypeFolder}}
	session := openSession(t, afero.NewMemMapFs(), c, "/")

	entries, err := session.List(context.Background())
	require.NoError(t, err)

	paths := []string{}
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"pub/README", "pub/dists/Release"}, paths)
}

func TestList_Error(t *testing.T) {
	session := openSession(t, afero.NewMemMapFs(), newMockConn(), "/missing")

	_, err := session.List(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "list /missing")
}

func TestFetch_RestartsAtPartialSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newMockConn()
	require.NoError(t, afero.WriteFile(fs, "/dst/dists/Release.tmp", []byte("0123"), 0644))
	session := openSession(t, fs, c, "/pub")

	entry := domain.RemoteEntry{Path: "dists/Release", Size: 10, Location: "/pub/dists/Release"}
	assert.True(t, session.NeedsSync("/dst/dists/Release", entry))

	progress := &ftpTestProgress{}
	require.NoError(t, session.Fetch(context.Background(), entry, "/dst/dists/Release", progress))

	assert.Equal(t, []uint64{4}, c.offsets)
	got, err := afero.ReadFile(fs, "/dst/dists/Release")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
	assert.Equal(t, int64(10), progress.transferred)
	assert.False(t, session.NeedsSync("/dst/dists/Release", entry))
}

func TestFetch_CompletePartialSkipsTransfer(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newMockConn()
	require.NoError(t, afero.WriteFile(fs, "/dst/README.tmp", []byte("hello\n"), 0644))
	session := openSession(t, fs, c, "/pub")

	entry := domain.RemoteEntry{Path: "README", Size: 6, Location: "/pub/README"}
	require.NoError(t, session.Fetch(context.Background(), entry, "/dst/README", &ftpTestProgress{}))

	assert.Empty(t, c.offsets)
	got, err := afero.ReadFile(fs, "/dst/README")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestFetch_OversizedPartialRestarts(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newMockConn()
	require.NoError(t, afero.WriteFile(fs, "/dst/README.tmp", []byte("far too long"), 0644))
	session := openSession(t, fs, c, "/pub")

	entry := domain.RemoteEntry{Path: "README", Size: 6, Location: "/pub/README"}
	require.NoError(t, session.Fetch(context.Background(), entry, "/dst/README", &ftpTestProgress{}))

	assert.Equal(t, []uint64{0}, c.offsets)
	got, err := afero.ReadFile(fs, "/dst/README")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(got))
}

func TestFetch_RetrieveError(t *testing.T) {
	fs := afero.NewMemMapFs()
	session := openSession(t, fs, newMockConn(), "/pub")

	err := session.Fetch(context.Background(), domain.RemoteEntry{Path: "x", Size: 1, Location: "/pub/x"}, "/dst/x", &ftpTestProgress{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "550")
	assert.False(t, driven.IsAbort(err))
}

func TestFetch_StalledTransferAbortsAndReconnects(t *testing.T) {
	fs := afero.NewMemMapFs()
	stalled := newMockConn()
	stalled.stall = []byte("0123")
	fresh := newMockConn()

	dials := 0
	tr := New(fs)
	tr.dial = func(context.Context, domain.Source) (conn, error) {
		dials++
		if dials == 1 {
			return stalled, nil
		}
		return fresh, nil
	}
	opened, err := tr.Open(context.Background(), domain.Source{
		Name: "ftp", Type: domain.TransportFTP, Endpoint: "ftp.example.com",
		Options: map[string]string{"remote_path": "/pub"},
	})
	require.NoError(t, err)
	opened.(*session).timeout = 50 * time.Millisecond

	entry := domain.RemoteEntry{Path: "dists/Release", Size: 10, Location: "/pub/dists/Release"}
	done := make(chan error, 1)
	go func() { done <- opened.Fetch(context.Background(), entry, "/dst/dists/Release", &ftpTestProgress{}) }()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return after the idle timeout")
	}
	require.ErrorIs(t, err, transfer.ErrStalled)
	assert.False(t, driven.IsAbort(err))
	assert.Equal(t, int32(1), stalled.abortCalls.Load())
	partial, err := afero.ReadFile(fs, "/dst/dists/Release.tmp")
	require.NoError(t, err)
	assert.Equal(t, "0123", string(partial))

	require.NoError(t, opened.Fetch(context.Background(), entry, "/dst/dists/Release", &ftpTestProgress{}))
	assert.Equal(t, 2, dials)
	assert.Equal(t, []uint64{4}, fresh.offsets)
	got, err := afero.ReadFile(fs, "/dst/dists/Release")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))

	require.NoError(t, opened.Close())
	assert.Equal(t, 1, fresh.quitCalls)
}

func TestFetch_CancelAbortsBlockedRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := newMockConn()
	c.stall = []byte("01")
	session := openSession(t, fs, c, "/pub")

	ctx, cancel := context.WithCancel(context.Background())
	entry := domain.RemoteEntry{Path: "dists/Release", Size: 10, Location: "/pub/dists/Release"}
	done := make(chan error, 1)
	go func() { done <- session.Fetch(ctx, entry, "/dst/dists/Release", &ftpTestProgress{}) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return after cancellation")
	}
	assert.Equal(t, int32(1), c.abortCalls.Load())
	assert.NoError(t, session.Close())
	assert.Zero(t, c.quitCalls)
}
