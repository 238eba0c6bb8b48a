// Package s3 mirrors the objects of an S3 or S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// Ensure Transport implements the interface.
var _ driven.Transport = (*Transport)(nil)

// Session defaults.
const (
	DefaultRegion  = "us-east-1"
	DefaultTimeout = 30 * time.Second
)

// api is the subset of *s3.Client used by a session.
type api interface {
	awss3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

type clientFactory func(ctx context.Context, source domain.Source) (api, error)

// Transport builds one S3 client per session.
type Transport struct {
	fs        afero.Fs
	newClient clientFactory
}

// New creates an S3 transport writing through fs. A nil fs uses the OS filesystem.
func New(fs afero.Fs) *Transport {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Transport{fs: fs, newClient: newClient}
}

func newClient(ctx context.Context, source domain.Source) (api, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(source.Option("region", DefaultRegion)),
	}
	if accessKey := source.Credential("access_key", ""); accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey,
			source.Credential("secret_key", ""),
			source.Credential("session_token", ""),
		)))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	pathStyle, err := strconv.ParseBool(source.Option("path_style", "false"))
	if err != nil {
		return nil, &domain.ValidationError{Field: "path_style", Reason: "must be true or false"}
	}
	endpointURL := source.Option("endpoint_url", "")

	return awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
		}
		o.UsePathStyle = pathStyle
	}), nil
}

// Open builds the client. No request is made until List.
func (t *Transport) Open(ctx context.Context, source domain.Source) (driven.Session, error) {
	limiter, err := transfer.LimiterFor(source)
	if err != nil {
		return nil, err
	}
	timeout := DefaultTimeout
	if raw := source.Option("timeout", ""); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, &domain.ValidationError{Field: "timeout", Reason: fmt.Sprintf("invalid seconds %q", raw)}
		}
		timeout = time.Duration(secs) * time.Second
	}
	client, err := t.newClient(ctx, source)
	if err != nil {
		return nil, err
	}
	return &session{
		fs:      t.fs,
		client:  client,
		bucket:  source.Endpoint,
		prefix:  strings.TrimPrefix(source.Option("prefix", ""), "/"),
		limiter: limiter,
		timeout: timeout,
	}, nil
}

type session struct {
	fs      afero.Fs
	client  api
	bucket  string
	prefix  string
	limiter *rate.Limiter
	timeout time.Duration
}

// List pages through the objects under the prefix. Folder placeholder keys are skipped.
func (s *session) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	input := &awss3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var entries []domain.RemoteEntry
	paginator := awss3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
			if rel == "" {
				continue
			}
			entries = append(entries, domain.RemoteEntry{
				Path:     rel,
				Size:     aws.ToInt64(obj.Size),
				ModTime:  aws.ToTime(obj.LastModified),
				Location: key,
			})
		}
	}
	return entries, nil
}

// NeedsSync compares size and last-modified time.
func (s *session) NeedsSync(localPath string, entry domain.RemoteEntry) bool {
	return transfer.NeedsSyncBySizeAndTime(s.fs, localPath, entry.Size, entry.ModTime)
}

// Fetch downloads the object with a ranged GET from the partial file's size.
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

	if offset < entry.Size || entry.Size == 0 {
		input := &awss3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(entry.Location),
		}
		if offset > 0 {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
		}
		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		out, err := s.client.GetObject(reqCtx, input)
		if err != nil {
			_ = dst.Close()
			return fmt.Errorf("get s3://%s/%s: %w", s.bucket, entry.Location, err)
		}
		body := transfer.NewIdleReader(ctx, out.Body, s.timeout, cancel)
		_, err = transfer.Copy(ctx, dst, body, progress, s.limiter, offset, entry.Size)
		_ = body.Close()
		_ = out.Body.Close()
		if err != nil {
			_ = dst.Close()
			return err
		}
	}

	if err := transfer.Finalize(s.fs, dst, localPath); err != nil {
		return err
	}
	if !entry.ModTime.IsZero() {
		if err := s.fs.Chtimes(localPath, entry.ModTime, entry.ModTime); err != nil {
			return fmt.Errorf("set times on %s: %w", localPath, err)
		}
	}
	return nil
}

func (s *session) Close() error {
	return nil
}
