package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// mockAPI implements api for testing.
type mockAPI struct {
	pages   [][]types.Object
	objects map[string]string
	ranges  []string
	listIn  []*awss3.ListObjectsV2Input

	// stall makes object bodies block after their data until the request context ends.
	stall bool
}

func (m *mockAPI) ListObjectsV2(
	_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options),
) (*awss3.ListObjectsV2Output, error) {
	m.listIn = append(m.listIn, in)
	page := 0
	if in.ContinuationToken != nil {
		_, _ = fmt.Sscanf(*in.ContinuationToken, "page-%d", &page)
	}
	out := &awss3.ListObjectsV2Output{Contents: m.pages[page]}
	if page+1 < len(m.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(fmt.Sprintf("page-%d", page+1))
	}
	return out, nil
}

func (m *mockAPI) GetObject(
	ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options),
) (*awss3.GetObjectOutput, error) {
	body, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	r := aws.ToString(in.Range)
	m.ranges = append(m.ranges, r)
	if r != "" {
		var start int
		_, _ = fmt.Sscanf(r, "bytes=%d-", &start)
		body = body[start:]
	}
	if m.stall {
		return &awss3.GetObjectOutput{Body: io.NopCloser(&stallingBody{ctx: ctx, data: strings.NewReader(body)})}, nil
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

type stallingBody struct {
	ctx  context.Context
	data io.Reader
}

func (b *stallingBody) Read(p []byte) (int, error) {
	n, err := b.data.Read(p)
	if err == io.EOF {
		<-b.ctx.Done()
		return n, b.ctx.Err()
	}
	return n, err
}

// s3TestProgress implements driven.Progress for testing.
type s3TestProgress struct {
	transferred int64
}

func (p *s3TestProgress) Checkpoint() error       { return nil }
func (p *s3TestProgress) Transferred(n int64)     { p.transferred += n }
func (p *s3TestProgress) FileProgress(_, _ int64) {}

var modTime = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func object(key string, size int64) types.Object {
	return types.Object{Key: aws.String(key), Size: aws.Int64(size), LastModified: aws.Time(modTime)}
}

func openSession(t *testing.T, fs afero.Fs, m *mockAPI, prefix string) driven.Session {
	t.Helper()
	tr := New(fs)
	tr.newClient = func(context.Context, domain.Source) (api, error) { return m, nil }
	session, err := tr.Open(context.Background(), domain.Source{
		Name: "bucket", Type: domain.TransportS3, Endpoint: "releases",
		Options: map[string]string{"prefix": prefix},
	})
	require.NoError(t, err)
	return session
}

func TestNewClient_BuildsWithStaticCredentials(t *testing.T) {
	c, err := newClient(context.Background(), domain.Source{
		Endpoint: "releases",
		Auth:     map[string]string{"access_key": "AKIA", "secret_key": "secret"},
		Options:  map[string]string{"endpoint_url": "http://127.0.0.1:9000", "path_style": "true", "region": "eu-west-1"},
	})
	require.NoError(t, err)
	client, ok := c.(*awss3.Client)
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", client.Options().Region)
	assert.True(t, client.Options().UsePathStyle)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(client.Options().BaseEndpoint))
}

func TestNewClient_InvalidPathStyle(t *testing.T) {
	_, err := newClient(context.Background(), domain.Source{
		Endpoint: "releases",
		Auth:     map[string]string{"access_key": "AKIA", "secret_key": "secret"},
		Options:  map[string]string{"path_style": "sometimes"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestList_PaginatesAndStripsPrefix(t *testing.T) {
	m := &mockAPI{pages: [][]types.Object{
		{object("v1/", 0), object("v1/app.tar.gz", 100)},
		{object("v1/docs/readme.md", 20)},
	}}
	session := openSession(t, afero.NewMemMapFs(), m, "v1/")

	entries, err := session.List(context.Background())
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "app.tar.gz", entries[0].Path)
	assert.Equal(t, "v1/app.tar.gz", entries[0].Location)
	assert.Equal(t, int64(100), entries[0].Size)
	assert.True(t, entries[0].ModTime.Equal(modTime))
	assert.Equal(t, "docs/readme.md", entries[1].Path)
	require.Len(t, m.listIn, 2)
	assert.Equal(t, "v1/", aws.ToString(m.listIn[0].Prefix))
	assert.Equal(t, "releases", aws.ToString(m.listIn[0].Bucket))
}

func TestFetch_RangedResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := &mockAPI{objects: map[string]string{"v1/app.tar.gz": "0123456789"}}
	require.NoError(t, afero.WriteFile(fs, "/dst/app.tar.gz.tmp", []byte("012"), 0644))
	session := openSession(t, fs, m, "v1/")

	entry := domain.RemoteEntry{Path: "app.tar.gz", Size: 10, ModTime: modTime, Location: "v1/app.tar.gz"}
	assert.True(t, session.NeedsSync("/dst/app.tar.gz", entry))

	progress := &s3TestProgress{}
	require.NoError(t, session.Fetch(context.Background(), entry, "/dst/app.tar.gz", progress))

	assert.Equal(t, []string{"bytes=3-"}, m.ranges)
	got, err := afero.ReadFile(fs, "/dst/app.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(got))
	assert.Equal(t, int64(10), progress.transferred)
	assert.False(t, session.NeedsSync("/dst/app.tar.gz", entry))
}

func TestFetch_CompletePartialSkipsRequest(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := &mockAPI{objects: map[string]string{"k": "abc"}}
	require.NoError(t, afero.WriteFile(fs, "/dst/k.tmp", []byte("abc"), 0644))
	session := openSession(t, fs, m, "")

	require.NoError(t, session.Fetch(context.Background(), domain.RemoteEntry{Path: "k", Size: 3, Location: "k"}, "/dst/k", &s3TestProgress{}))

	assert.Empty(t, m.ranges)
	exists, err := afero.Exists(fs, "/dst/k")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFetch_GetError(t *testing.T) {
	session := openSession(t, afero.NewMemMapFs(), &mockAPI{objects: map[string]string{}}, "")

	err := session.Fetch(context.Background(), domain.RemoteEntry{Path: "k", Size: 3, Location: "k"}, "/dst/k", &s3TestProgress{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey")
}

func TestFetch_StalledBodyTimesOut(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := &mockAPI{objects: map[string]string{"k": "0123"}, stall: true}
	opened := openSession(t, fs, m, "")
	opened.(*session).timeout = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- opened.Fetch(context.Background(), domain.RemoteEntry{Path: "k", Size: 10, Location: "k"}, "/dst/k", &s3TestProgress{})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, transfer.ErrStalled)
	case <-time.After(5 * time.Second):
		t.Fatal("fetch did not return after the idle timeout")
	}
	partial, err := afero.ReadFile(fs, "/dst/k.tmp")
	require.NoError(t, err)
	assert.Equal(t, "0123", string(partial))
}

func TestOpen_InvalidTimeout(t *testing.T) {
	tr := New(afero.NewMemMapFs())
	tr.newClient = func(context.Context, domain.Source) (api, error) { return &mockAPI{}, nil }

	_, err := tr.Open(context.Background(), domain.Source{
		Name: "bucket", Type: domain.TransportS3, Endpoint: "releases",
		Options: map[string]string{"timeout": "soon"},
	})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
