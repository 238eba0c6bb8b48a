// Package web mirrors files published over HTTP or HTTPS.
//
// Files are discovered either from a JSON index (option api_url) or by
// scraping anchor links from the endpoint page. Listing is not recursive.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/logger"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// Ensure Transport implements the interface.
var _ driven.Transport = (*Transport)(nil)

// DefaultTimeout applies when the source sets no timeout option.
const DefaultTimeout = 30 * time.Second

// Transport fetches files with plain HTTP GET requests.
type Transport struct {
	fs        afero.Fs
	userAgent string
}

// New creates an HTTP transport writing through fs. A nil fs uses the OS filesystem.
func New(fs afero.Fs, userAgent string) *Transport {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if userAgent == "" {
		userAgent = "mirrorsync"
	}
	return &Transport{fs: fs, userAgent: userAgent}
}

// Open prepares an HTTP client for the source. No request is made until List.
func (t *Transport) Open(_ context.Context, source domain.Source) (driven.Session, error) {
	base, err := url.Parse(source.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	timeout := DefaultTimeout
	if raw := source.Option("timeout", ""); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs <= 0 {
			return nil, &domain.ValidationError{Field: "timeout", Reason: fmt.Sprintf("invalid seconds %q", raw)}
		}
		timeout = time.Duration(secs * float64(time.Second))
	}
	limiter, err := transfer.LimiterFor(source)
	if err != nil {
		return nil, err
	}

	client := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
	}

	return &session{
		fs:        t.fs,
		client:    client,
		base:      base,
		source:    source,
		limiter:   limiter,
		timeout:   timeout,
		userAgent: t.userAgent,
	}, nil
}

type session struct {
	fs        afero.Fs
	client    *http.Client
	base      *url.URL
	source    domain.Source
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
}

type indexResponse struct {
	Files []struct {
		Name string `json:"name"`
		URL  string `json:"url"`
		Size int64  `json:"size"`
	} `json:"files"`
}

// List reads the JSON index when configured and falls back to scraping the endpoint page.
func (s *session) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	if apiURL := s.source.Option("api_url", ""); apiURL != "" {
		entries, err := s.listIndex(ctx, apiURL)
		if err == nil {
			return entries, nil
		}
		if s.source.Option("parse_html", "true") != "true" {
			return nil, err
		}
		logger.WithFields(logger.Fields{"source": s.source.Name}).
			Warnf("index listing failed, scraping %s instead: %v", s.base, err)
	}
	if s.source.Option("parse_html", "true") != "true" {
		return nil, nil
	}
	return s.listLinks(ctx)
}

func (s *session) listIndex(ctx context.Context, apiURL string) ([]domain.RemoteEntry, error) {
	resp, err := s.get(ctx, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch index: unexpected status %s", resp.Status)
	}

	var index indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}

	indexURL, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}
	entries := make([]domain.RemoteEntry, 0, len(index.Files))
	for _, f := range index.Files {
		name := path.Clean("/" + f.Name)[1:]
		if name == "" || f.URL == "" {
			continue
		}
		ref, err := url.Parse(f.URL)
		if err != nil {
			continue
		}
		entries = append(entries, domain.RemoteEntry{
			Path:     name,
			Size:     f.Size,
			Location: indexURL.ResolveReference(ref).String(),
		})
	}
	return entries, nil
}

func (s *session) listLinks(ctx context.Context) ([]domain.RemoteEntry, error) {
	resp, err := s.get(ctx, s.base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch listing: unexpected status %s", resp.Status)
	}
	return parseLinks(s.base, resp.Body)
}

// parseLinks extracts file links from an HTML directory page.
// Parent, self, query and directory links are skipped.
func parseLinks(base *url.URL, r io.Reader) ([]domain.RemoteEntry, error) {
	var entries []domain.RemoteEntry
	seen := make(map[string]bool)

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return entries, nil
			}
			return nil, fmt.Errorf("parse listing: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			href := hrefAttr(z)
			if skipLink(href) {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			abs := base.ResolveReference(ref)
			fileName := path.Base(abs.Path)
			if fileName == "/" || fileName == "." || seen[fileName] {
				continue
			}
			seen[fileName] = true
			entries = append(entries, domain.RemoteEntry{
				Path:     fileName,
				Location: abs.String(),
			})
		}
	}
}

func hrefAttr(z *html.Tokenizer) string {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return strings.TrimSpace(string(val))
		}
		if !more {
			return ""
		}
	}
}

func skipLink(href string) bool {
	switch {
	case href == "", href == "../", href == "./", href == "/":
		return true
	case strings.HasPrefix(href, "?"), strings.HasPrefix(href, "#"):
		return true
	case strings.HasPrefix(href, "mailto:"), strings.HasPrefix(href, "javascript:"):
		return true
	case strings.HasSuffix(href, "/"):
		return true
	}
	return false
}

// NeedsSync compares the local size with the listed size.
// Entries of unknown size are always fetched.
func (s *session) NeedsSync(localPath string, entry domain.RemoteEntry) bool {
	if entry.Size <= 0 {
		return true
	}
	return transfer.NeedsSyncBySize(s.fs, localPath, entry.Size)
}

// Fetch downloads into a .tmp file, resuming with a Range request when one exists.
// A partial longer than the remote file, or one the server refuses to extend, is discarded.
func (s *session) Fetch(ctx context.Context, entry domain.RemoteEntry, localPath string, progress driven.Progress) error {
	dst, offset, err := transfer.OpenPartial(s.fs, localPath)
	if err != nil {
		return err
	}
	if entry.Size > 0 && offset > entry.Size {
		if err := transfer.Truncate(dst); err != nil {
			_ = dst.Close()
			return err
		}
		offset = 0
	}

	resp, err := s.getFrom(ctx, entry.Location, offset)
	if err != nil {
		_ = dst.Close()
		return err
	}
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		_ = resp.Body.Close()
		if _, size, ok := parseContentRange(resp.Header.Get("Content-Range")); ok && size == offset {
			progress.Transferred(offset)
			return transfer.Finalize(s.fs, dst, localPath)
		}
		if err := transfer.Truncate(dst); err != nil {
			_ = dst.Close()
			return err
		}
		offset = 0
		if resp, err = s.getFrom(ctx, entry.Location, 0); err != nil {
			_ = dst.Close()
			return err
		}
	}
	defer resp.Body.Close()

	total := entry.Size
	switch resp.StatusCode {
	case http.StatusPartialContent:
		start, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if ok && start != offset {
			_ = dst.Close()
			return fmt.Errorf("download %s: server resumed at byte %d, want %d", entry.Location, start, offset)
		}
		switch {
		case ok && size > 0:
			total = size
		case total <= 0 && resp.ContentLength >= 0:
			total = offset + resp.ContentLength
		}
	case http.StatusOK:
		if offset > 0 {
			if err := transfer.Truncate(dst); err != nil {
				_ = dst.Close()
				return err
			}
			offset = 0
		}
		if resp.ContentLength >= 0 {
			total = resp.ContentLength
		}
	default:
		_ = dst.Close()
		return fmt.Errorf("download %s: unexpected status %s", entry.Location, resp.Status)
	}
	if offset > 0 {
		progress.Transferred(offset)
	}

	if _, err := transfer.Copy(ctx, dst, resp.Body, progress, s.limiter, offset, total); err != nil {
		_ = dst.Close()
		return err
	}
	return transfer.Finalize(s.fs, dst, localPath)
}

func (s *session) getFrom(ctx context.Context, rawURL string, offset int64) (*http.Response, error) {
	header := http.Header{}
	if offset > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := s.get(ctx, rawURL, header)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", rawURL, err)
	}
	return resp, nil
}

// parseContentRange reads "bytes <start>-<end>/<size>" or "bytes */<size>".
// start is -1 for the unsatisfied form and size is -1 when the server sends "*".
func parseContentRange(value string) (start, size int64, ok bool) {
	spec, found := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !found {
		return 0, 0, false
	}
	rng, total, found := strings.Cut(spec, "/")
	if !found {
		return 0, 0, false
	}
	size = -1
	if total != "*" {
		n, err := strconv.ParseInt(total, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		size = n
	}
	if rng == "*" {
		return -1, size, size >= 0
	}
	first, _, found := strings.Cut(rng, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	return start, size, true
}

// get issues a GET whose body read is bounded by the idle timeout.
func (s *session) get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("User-Agent", s.userAgent)
	if user := s.source.Credential("username", ""); user != "" {
		req.SetBasicAuth(user, s.source.Credential("password", ""))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &guardedBody{
		IdleReader: transfer.NewIdleReader(ctx, resp.Body, s.timeout, cancel),
		body:       resp.Body,
		cancel:     cancel,
	}
	return resp, nil
}

type guardedBody struct {
	*transfer.IdleReader
	body   io.Closer
	cancel context.CancelFunc
}

func (b *guardedBody) Close() error {
	_ = b.IdleReader.Close()
	err := b.body.Close()
	b.cancel()
	return err
}

func (s *session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
