// Package sftp mirrors a directory tree over SSH.
package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	pkgsftp "github.com/pkg/sftp"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// Ensure Transport implements the interface.
var _ driven.Transport = (*Transport)(nil)

// Connection defaults.
const (
	DefaultPort    = "22"
	DefaultTimeout = 30 * time.Second
)

// client is the subset of the SFTP client used by a session.
// Abort drops the connection so that pending reads fail.
type client interface {
	ReadDir(p string) ([]os.FileInfo, error)
	Open(p string) (io.ReadSeekCloser, error)
	Close() error
	Abort()
}

type sftpClient struct {
	sftp *pkgsftp.Client
	ssh  *ssh.Client
}

func (c *sftpClient) ReadDir(p string) ([]os.FileInfo, error) {
	return c.sftp.ReadDir(p)
}

func (c *sftpClient) Open(p string) (io.ReadSeekCloser, error) {
	f, err := c.sftp.Open(p)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (c *sftpClient) Close() error {
	err := c.sftp.Close()
	if c.ssh != nil {
		if sshErr := c.ssh.Close(); err == nil {
			err = sshErr
		}
	}
	return err
}

func (c *sftpClient) Abort() {
	if c.ssh != nil {
		_ = c.ssh.Close()
		return
	}
	_ = c.sftp.Close()
}

type dialFunc func(ctx context.Context, source domain.Source) (client, error)

// Transport opens one SSH connection per session.
type Transport struct {
	fs   afero.Fs
	dial dialFunc
}

// New creates an SFTP transport writing through fs. A nil fs uses the OS filesystem.
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

func clientConfig(source domain.Source) (*ssh.ClientConfig, error) {
	timeout, err := timeoutOf(source)
	if err != nil {
		return nil, err
	}

	var auth []ssh.AuthMethod
	if keyPath := source.Credential("private_key", ""); keyPath != "" {
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if passphrase := source.Credential("passphrase", ""); passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if password := source.Credential("password", ""); password != "" {
		auth = append(auth, ssh.Password(password))
	}
	if len(auth) == 0 {
		return nil, &domain.ValidationError{Field: "auth", Reason: "password or private_key is required for sftp"}
	}

	//nolint:gosec // host keys are only verified when a known_hosts file is configured
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if knownHosts := source.Option("known_hosts", ""); knownHosts != "" {
		cb, err := knownhosts.New(knownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            source.Credential("username", ""),
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func dial(ctx context.Context, source domain.Source) (client, error) {
	cfg, err := clientConfig(source)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(source.Endpoint, source.Option("port", DefaultPort))

	dialer := net.Dialer{Timeout: cfg.Timeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	cc, chans, reqs, err := ssh.NewClientConn(nc, addr, cfg)
	if err != nil {
		_ = nc.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(cc, chans, reqs)
	sc, err := pkgsftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, fmt.Errorf("start sftp subsystem: %w", err)
	}
	return &sftpClient{sftp: sc, ssh: sshClient}, nil
}

// Open connects and authenticates.
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
		client:  c,
		root:    path.Clean("/" + source.Option("remote_path", "/")),
		limiter: limiter,
		timeout: timeout,
	}, nil
}

type session struct {
	fs      afero.Fs
	dial    dialFunc
	source  domain.Source
	client  client
	root    string
	limiter *rate.Limiter
	timeout time.Duration

	// broken is set once a stalled or cancelled transfer dropped the connection.
	broken atomic.Bool
}

func (s *session) reconnect(ctx context.Context) error {
	if !s.broken.Load() {
		return nil
	}
	c, err := s.dial(ctx, s.source)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	s.client = c
	s.broken.Store(false)
	return nil
}

// List walks the remote tree using directory entries with attributes.
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
	infos, err := s.client.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	for _, info := range infos {
		full := path.Join(dir, info.Name())
		if info.IsDir() {
			if err := s.walk(ctx, full, out); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		*out = append(*out, domain.RemoteEntry{
			Path:       strings.TrimPrefix(strings.TrimPrefix(full, s.root), "/"),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			AccessTime: accessTime(info),
			Location:   full,
		})
	}
	return nil
}

func accessTime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*pkgsftp.FileStat); ok && st.Atime != 0 {
		return time.Unix(int64(st.Atime), 0)
	}
	return time.Time{}
}

// NeedsSync compares size and modification time.
func (s *session) NeedsSync(localPath string, entry domain.RemoteEntry) bool {
	return transfer.NeedsSyncBySizeAndTime(s.fs, localPath, entry.Size, entry.ModTime)
}

// Fetch seeks the remote file to the partial file's size and appends the rest.
// The finished file takes the remote access and modification times.
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

	if err := s.reconnect(ctx); err != nil {
		_ = dst.Close()
		return err
	}
	c := s.client
	src, err := c.Open(entry.Location)
	if err != nil {
		_ = dst.Close()
		return fmt.Errorf("open %s: %w", entry.Location, err)
	}
	defer src.Close()

	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			_ = dst.Close()
			return fmt.Errorf("seek %s: %w", entry.Location, err)
		}
		progress.Transferred(offset)
	}

	guarded := transfer.NewIdleReader(ctx, src, s.timeout, func() {
		s.broken.Store(true)
		c.Abort()
	})
	_, err = transfer.Copy(ctx, dst, guarded, progress, s.limiter, offset, entry.Size)
	_ = guarded.Close()
	if err != nil {
		_ = dst.Close()
		return err
	}
	if err := transfer.Finalize(s.fs, dst, localPath); err != nil {
		return err
	}
	if !entry.ModTime.IsZero() {
		atime := entry.AccessTime
		if atime.IsZero() {
			atime = entry.ModTime
		}
		if err := s.fs.Chtimes(localPath, atime, entry.ModTime); err != nil {
			return fmt.Errorf("set times on %s: %w", localPath, err)
		}
	}
	return nil
}

func (s *session) Close() error {
	if s.broken.Load() {
		return nil
	}
	return s.client.Close()
}
