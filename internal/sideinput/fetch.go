package sideinput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Fetcher retrieves the raw bytes behind a side-input URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ErrNotFound marks a side input that does not exist. It is never retried.
var ErrNotFound = errors.New("side input not found")

// FileFetcher reads file:// URLs and bare paths.
type FileFetcher struct{}

// Fetch reads the file.
func (FileFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	path := strings.TrimPrefix(rawURL, "file://")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return data, err
}

// HTTPFetcher performs GET requests.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch downloads the URL. 404 maps to ErrNotFound; other non-2xx statuses
// are returned as retryable errors.
func (f HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// S3Config holds the connection settings of an S3-compatible store.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// S3Fetcher reads s3://bucket/key URLs through minio-go.
type S3Fetcher struct {
	client *minio.Client
}

// NewS3Fetcher connects to the endpoint. No request is made until Fetch.
func NewS3Fetcher(cfg S3Config) (*S3Fetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client %s: %w", cfg.Endpoint, err)
	}
	return &S3Fetcher{client: client}, nil
}

// Fetch downloads the object.
func (f *S3Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := splitS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
		}
		return nil, err
	}
	return data, nil
}

func splitS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %q", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 url without key: %q", rawURL)
	}
	return u.Host, key, nil
}

// MultiFetcher routes a URL to the fetcher for its scheme.
type MultiFetcher struct {
	File Fetcher
	HTTP Fetcher
	S3   Fetcher
}

// Fetch dispatches on the URL scheme. Bare paths go to File.
func (m MultiFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var f Fetcher
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		f = m.HTTP
	case strings.HasPrefix(rawURL, "s3://"):
		f = m.S3
	case strings.HasPrefix(rawURL, "file://"), !strings.Contains(rawURL, "://"):
		f = m.File
	}
	if f == nil {
		return nil, fmt.Errorf("no fetcher for %q", rawURL)
	}
	return f.Fetch(ctx, rawURL)
}

// RetryFetcher retries transient failures with exponential backoff.
// ErrNotFound and context cancellation are returned at once.
type RetryFetcher struct {
	Next       Fetcher
	MaxRetries uint64

	// NewBackOff overrides the schedule; tests use a zero-delay policy.
	NewBackOff func() backoff.BackOff
}

// Fetch calls Next until it succeeds or the retries are spent.
func (r RetryFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	op := func() error {
		var err error
		data, err = r.Next.Fetch(ctx, rawURL)
		if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}

	var b backoff.BackOff
	if r.NewBackOff != nil {
		b = r.NewBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 200 * time.Millisecond
		eb.MaxElapsedTime = time.Minute
		b = eb
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.MaxRetries), ctx)); err != nil {
		return nil, err
	}
	return data, nil
}

// NewDefaultFetcher builds the routing fetcher used by the CLI: local files,
// HTTP(S) and, when s3 carries an endpoint, s3:// objects, all wrapped with
// retries.
func NewDefaultFetcher(s3 S3Config, retries uint64) (Fetcher, error) {
	m := MultiFetcher{File: FileFetcher{}, HTTP: HTTPFetcher{}}
	if s3.Endpoint != "" {
		f, err := NewS3Fetcher(s3)
		if err != nil {
			return nil, err
		}
		m.S3 = f
	}
	return RetryFetcher{Next: m, MaxRetries: retries}, nil
}
