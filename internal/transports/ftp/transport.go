// Package ftp mirrors a directory tree from an FTP server.
package ftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goftp "github.com/jlaffaye/ftp"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// Ensure Transport implements the interface.
var _ driven.Transport = (*Transport)(nil)

// Connection defaults.
const (
	DefaultPort     = "21"
	DefaultUser     = "anonymous"
	DefaultPassword = "anonymous@"
	DefaultTimeout  = 30 * time.Second
)

// conn is the subset of *goftp.ServerConn used by a session.
// Abort drops the control and data connections without a QUIT exchange.
type conn interface {
	List(p string) ([]*goftp.Entry, error)
	RetrFrom(p string, offset uint64) (io.ReadCloser, error)
	Quit() error
	Abort()
}

type serverConn struct {
	*goftp.ServerConn
	conns *connSet
}

func (c serverConn) RetrFrom(p string, offset uint64) (io.ReadCloser, error) {
	return c.ServerConn.RetrFrom(p, offset)
}

func (c serverConn) Abort() {
	c.conns.closeAll()
}

// connSet records the sockets dialed for one server connection.
type connSet struct {
	ctx    context.Context
	dialer net.Dialer

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func (s *connSet) dial(network, address string) (net.Conn, error) {
	c, err := s.dialer.DialContext(s.ctx, network, address)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	return &trackedConn{Conn: c, set: s}, nil
}

func (s *connSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
	clear(s.conns)
}

type trackedConn struct {
	net.Conn
	set *connSet
}

func (c *trackedConn) Close() error {
	c.set.mu.Lock()
	delete(c.set.conns, c.Conn)
	c.set.mu.Unlock()
	return c.Conn.Close()
}

type dialFunc func(ctx context.Context, source domain.Source) (conn, error)

// Transport opens one FTP control connection per session.
type Transport struct {
	fs   afero.Fs
	dial dialFunc
}

// New creates an FTP transport writing through fs. A nil fs uses the OS filesystem.
func New(fs afero.Fs) *Transport {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Transport{fs: fs, dial: dial}
}

func timeoutOf(source domain.Source) (time.Duration, error) {
	raw := source.Option("timeout", "")
	if raw == "" {
		return DefaultTimeout, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0, &domain.ValidationError{Field: "timeout", Reason: fmt.Sprintf("invalid seconds %q", raw)}
	}
	return time.Duration(secs) * time.Second, nil
}

func dial(ctx context.Context, source domain.Source) (conn, error) {
	timeout, err := timeoutOf(source)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(source.Endpoint, source.Option("port", DefaultPort))

	conns := &connSet{ctx: ctx, dialer: net.Dialer{Timeout: timeout}, conns: make(map[net.Conn]struct{})}
	c, err := goftp.Dial(addr, goftp.DialWithDialFunc(conns.dial))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	user := source.Credential("username", DefaultUser)
	if err := c.Login(user, source.Credential("password", DefaultPassword)); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("login as %s: %w", user, err)
	}
	if err := c.Type(goftp.TransferTypeBinary); err != nil {
		_ = c.Quit()
		return nil, fmt.Errorf("binary mode: %w", err)
	}
	return serverConn{ServerConn: c, conns: conns}, nil
}

// Open connects and logs in.
func (t *Transport) Open(ctx context.Context, source domain.Source) (driven.Session, error) {
	limiter, err := transfer.LimiterFor(source)
	if err != nil {
		return nil, err
	}
	timeout, err := timeoutOf(source)
	if err != nil {
		return nil, err
	}
	c, err := t.dial(ctx, source)
	if err != nil {
		return nil, err
	}
	return &session{
		fs:      t.fs,
		dial:    t.dial,
		source:  source,
		conn:    c,
		root:    path.Clean("/" + source.Option("remote_path", "/")),
		limiter: limiter,
		timeout: timeout,
	}, nil
}

type session struct {
	fs      afero.Fs
	dial    dialFunc
	source  domain.Source
	conn    conn
	root    string
	limiter *rate.Limiter
	timeout time.Duration

	// broken is set once a stalled or cancelled transfer tore the connection down.
	broken atomic.Bool
}

// reconnect replaces a connection dropped by abort.
func (s *session) reconnect(ctx context.Context) error {
	if !s.broken.Load() {
		return nil
	}
	c, err := s.dial(ctx, s.source)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	s.conn = c
	s.broken.Store(false)
	return nil
}

// List walks the remote tree with LIST, descending into folders.
func (s *session) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	var entries []domain.RemoteEntry
	if err := s.walk(ctx, s.root, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *session) walk(ctx context.Context, dir string, out *[]domain.RemoteEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list, err := s.conn.List(dir)
	if err != nil {
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, e := range list {
		if e.Name == "." || e.Name == ".." || e.Name == "" {
			continue
		}
		full := path.Join(dir, e.Name)
		switch e.Type {
		case goftp.EntryTypeFolder:
			if err := s.walk(ctx, full, out); err != nil {
				return err
			}
		case goftp.EntryTypeFile:
			rel := strings.TrimPrefix(strings.TrimPrefix(full, s.root), "/")
			*out = append(*out, domain.RemoteEntry{
				Path:     rel,
				Size:     int64(e.Size),
				ModTime:  e.Time,
				Location: full,
			})
		}
	}
	return nil
}

// NeedsSync compares local and remote sizes. FTP modification times are too coarse to trust.
func (s *session) NeedsSync(localPath string, entry domain.RemoteEntry) bool {
	return transfer.NeedsSyncBySize(s.fs, localPath, entry.Size)
}

// Fetch downloads in binary mode, restarting at the partial file's size.
func (s *session) Fetch(ctx context.Context, entry domain.RemoteEntry, localPath string, progress driven.Progress) error {
	dst, offset, err := transfer.OpenPartial(s.fs, localPath)
	if err != nil {
		return err
	}
	if offset > entry.Size {
		if err := transfer.Truncate(dst); err != nil {
			_ = dst.Close()
			return err
		}
		offset = 0
	}
	if offset > 0 {
		progress.Transferred(offset)
	}
	if offset == entry.Size && offset > 0 {
		return transfer.Finalize(s.fs, dst, localPath)
	}

	if err := s.reconnect(ctx); err != nil {
		_ = dst.Close()
		return err
	}
	body, err := s.conn.RetrFrom(entry.Location, uint64(offset))
	if err != nil {
		_ = dst.Close()
		return fmt.Errorf("retrieve %s: %w", entry.Location, err)
	}
	c := s.conn
	guarded := transfer.NewIdleReader(ctx, body, s.timeout, func() {
		s.broken.Store(true)
		c.Abort()
	})
	_, copyErr := transfer.Copy(ctx, dst, guarded, progress, s.limiter, offset, entry.Size)
	_ = guarded.Close()
	closeErr := body.Close()
	if copyErr != nil {
		_ = dst.Close()
		return copyErr
	}
	if closeErr != nil {
		_ = dst.Close()
		return fmt.Errorf("finish %s: %w", entry.Location, closeErr)
	}
	return transfer.Finalize(s.fs, dst, localPath)
}

func (s *session) Close() error {
	if s.broken.Load() {
		return nil
	}
	return s.conn.Quit()
}
