// Package secrets resolves secret:// references against Google Secret
// Manager, with a local fallback file for development environments that have
// no service account.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/evergrove/storefront/internal/platform/secrets"

// accessClient is the slice of the Secret Manager API the fetcher needs.
type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// newAccessClient is swapped in tests to simulate missing credentials.
var newAccessClient = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves secret references, caching values for the process
// lifetime. Resolved secrets are static configuration here; rotation means a
// redeploy.
type Fetcher struct {
	client    accessClient
	closable  bool
	logger    *zap.Logger
	env       string
	projectID string
	fallback  *fallbackFile

	mu    sync.Mutex
	cache map[string]string

	duration  metric.Float64Histogram
	cacheHits metric.Int64Counter
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithEnvironment records the deployment environment for log context.
func WithEnvironment(env string) Option {
	return func(f *Fetcher) {
		f.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the Secret Manager project used when a reference
// does not name one.
func WithDefaultProject(projectID string) Option {
	return func(f *Fetcher) {
		f.projectID = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile points at the local secrets file consulted when Secret
// Manager is unreachable or denies access.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) {
		f.fallback = &fallbackFile{path: strings.TrimSpace(path)}
	}
}

// WithClient injects a preconstructed API client. The fetcher will not close
// an injected client.
func WithClient(client accessClient) Option {
	return func(f *Fetcher) {
		f.client = client
		f.closable = false
	}
}

// WithClientOptions forwards options (credentials file etc.) to the real
// Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(f *Fetcher) {
		if f.client != nil {
			return
		}
		client, err := newAccessClient(context.Background(), opts...)
		if err != nil {
			f.logger.Warn("secret manager client unavailable, fallback file only", zap.Error(err))
			return
		}
		f.client = client
		f.closable = true
	}
}

// NewFetcher builds a Fetcher. When no client was injected and none was built
// by WithClientOptions, a default client is attempted; failure leaves the
// fetcher in fallback-only mode rather than failing startup.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{
		logger:   zap.NewNop(),
		env:      "local",
		fallback: &fallbackFile{path: ".secrets.local"},
		cache:    make(map[string]string),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.client == nil {
		client, err := newAccessClient(ctx)
		if err != nil {
			f.logger.Warn("secret manager client unavailable, fallback file only", zap.Error(err))
		} else {
			f.client = client
			f.closable = true
		}
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	if hist, err := meter.Float64Histogram("storefront.secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Time spent resolving a secret reference"),
	); err == nil {
		f.duration = hist
	}
	if counter, err := meter.Int64Counter("storefront.secrets.resolve.cache_hits",
		metric.WithDescription("Secret resolutions served from the in-process cache"),
	); err == nil {
		f.cacheHits = counter
	}

	return f, nil
}

// Close releases the API client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.closable && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind a secret:// reference. Lookup order is
// cache, Secret Manager, then the fallback file; access and availability
// failures fall through to the file, anything else surfaces to the caller.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	name, version, project, err := splitRef(ref)
	if err != nil {
		return "", err
	}
	if project == "" {
		project = f.projectID
	}
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)

	f.mu.Lock()
	value, hit := f.cache[resource]
	f.mu.Unlock()
	if hit {
		f.count(ctx, f.cacheHits)
		return value, nil
	}

	source := "fallback"
	if project != "" && f.client != nil {
		resp, accessErr := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
		switch {
		case accessErr == nil:
			if resp == nil || resp.Payload == nil {
				return "", fmt.Errorf("secrets: empty payload for %s", resource)
			}
			value = string(resp.Payload.GetData())
			source = "remote"
		case accessDenied(accessErr):
			f.logger.Debug("secret manager unavailable, trying fallback file",
				zap.String("env", f.env), zap.Error(accessErr))
		default:
			f.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: access %s: %w", name, accessErr)
		}
	}

	if source == "fallback" {
		fallbackValue, ok := f.fallback.lookup(f.logger, name, version)
		if !ok {
			f.record(ctx, start, "error")
			return "", status.Errorf(codes.NotFound, "secrets: no value for %s", name)
		}
		value = fallbackValue
	}

	f.mu.Lock()
	f.cache[resource] = value
	f.mu.Unlock()

	f.record(ctx, start, source)
	return value, nil
}

func (f *Fetcher) record(ctx context.Context, start time.Time, source string) {
	if f.duration == nil {
		return
	}
	f.duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) count(ctx context.Context, counter metric.Int64Counter) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1)
}

// splitRef parses "secret://name", honouring version and project query
// parameters. The version defaults to latest.
func splitRef(ref string) (name, version, project string, err error) {
	if strings.TrimSpace(ref) == "" {
		return "", "", "", errors.New("secrets: empty reference")
	}
	u, parseErr := url.Parse(ref)
	if parseErr != nil {
		return "", "", "", fmt.Errorf("secrets: bad reference %q: %w", ref, parseErr)
	}
	if u.Scheme != "secret" {
		return "", "", "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name = strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "", "", "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version = strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	project = strings.TrimSpace(u.Query().Get("project"))
	return name, version, project, nil
}

func accessDenied(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// fallbackFile is a flat "name=value" file. Keys may be bare secret names or
// full secret:// references; a "?version=N" suffix pins that key to one
// version.
type fallbackFile struct {
	path string

	once   sync.Once
	values map[string]string
}

func (ff *fallbackFile) lookup(logger *zap.Logger, name, version string) (string, bool) {
	ff.once.Do(func() { ff.load(logger) })
	if v, ok := ff.values[name+"?version="+version]; ok {
		return v, true
	}
	v, ok := ff.values[name]
	return v, ok
}

func (ff *fallbackFile) load(logger *zap.Logger) {
	ff.values = make(map[string]string)
	if ff.path == "" {
		return
	}

	raw, err := os.ReadFile(ff.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("unable to read fallback secrets file", zap.String("path", ff.path), zap.Error(err))
		}
		return
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		key = strings.TrimPrefix(key, "secret://")
		key = strings.TrimPrefix(key, "sm://")
		if key == "" {
			continue
		}
		ff.values[key] = strings.TrimSpace(value)
	}
}
