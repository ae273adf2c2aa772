package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/mohammad-safakhou/tweetsense/internal/logging"
	"github.com/mohammad-safakhou/tweetsense/internal/metrics"
)

// Artifact is a file or directory the service needs on local disk.
type Artifact struct {
	Name      string
	LocalPath string
	URL       string
	// Archive marks URL as a tar.gz that unpacks into the LocalPath directory.
	Archive bool
}

// Options configures a Fetcher. Zero values get defaults.
type Options struct {
	Locker     Locker
	LockTTL    time.Duration
	Retries    int
	RetryDelay time.Duration
	Timeout    time.Duration
	HTTPClient *http.Client
	Log        logging.Logger
}

// Fetcher makes artifacts present on disk, downloading them at most once.
type Fetcher struct {
	locker  Locker
	lockTTL time.Duration
	retry   retrypolicy.RetryPolicy[string]
	timeout time.Duration
	http    *http.Client
	log     logging.Logger
}

// errPermanent marks download failures that retrying cannot fix.
var errPermanent = errors.New("permanent download failure")

func NewFetcher(opts Options) *Fetcher {
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	// The lock must outlive the download plus install.
	if opts.LockTTL < opts.Timeout+time.Minute {
		opts.LockTTL = opts.Timeout + time.Minute
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Log == nil {
		opts.Log = logging.Discard()
	}
	log := opts.Log
	retry := retrypolicy.NewBuilder[string]().
		WithBackoff(opts.RetryDelay, 20*opts.RetryDelay).
		WithMaxRetries(opts.Retries).
		WithJitterFactor(0.1).
		HandleIf(func(_ string, err error) bool {
			return err != nil && !errors.Is(err, errPermanent) && !errors.Is(err, context.Canceled)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[string]) {
			log.WithField("attempt", e.Attempts()).WithError(e.LastError()).Warn("retrying artifact download")
		}).
		Build()

	return &Fetcher{
		locker:  opts.Locker,
		lockTTL: opts.LockTTL,
		retry:   retry,
		timeout: opts.Timeout,
		http:    opts.HTTPClient,
		log:     opts.Log,
	}
}

// Ensure returns a.LocalPath once it exists, fetching it from a.URL if it is
// missing. The final path is only ever created by a rename, so readers never
// see a partial artifact.
func (f *Fetcher) Ensure(ctx context.Context, a Artifact) (string, error) {
	if exists(a.LocalPath) {
		return a.LocalPath, nil
	}
	if a.URL == "" {
		return "", fmt.Errorf("%s not found at %s and no download url configured", a.Name, a.LocalPath)
	}

	unlock, err := f.locker.Lock(ctx, "tweetsense:artifact:"+a.Name, f.lockTTL)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", a.Name, err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			f.log.WithError(err).Warn("artifact lock release failed")
		}
	}()

	// Another holder may have finished while we waited.
	if exists(a.LocalPath) {
		return a.LocalPath, nil
	}

	dir := filepath.Dir(a.LocalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	dctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	start := time.Now()
	tmp, err := failsafe.With[string](f.retry).WithContext(dctx).Get(func() (string, error) {
		return f.download(dctx, a, dir)
	})
	if err != nil {
		metrics.ArtifactDownloadsTotal.WithLabelValues(a.Name, "error").Inc()
		return "", fmt.Errorf("download %s: %w", a.Name, err)
	}
	defer os.Remove(tmp)

	if a.Archive {
		err = installArchive(tmp, a.LocalPath)
	} else {
		err = os.Rename(tmp, a.LocalPath)
	}
	if err != nil {
		// A holder whose lock expired may have installed it first.
		if exists(a.LocalPath) {
			f.log.WithField("artifact", a.Name).WithError(err).Warn("artifact installed concurrently; keeping existing copy")
			return a.LocalPath, nil
		}
		metrics.ArtifactDownloadsTotal.WithLabelValues(a.Name, "error").Inc()
		return "", fmt.Errorf("install %s: %w", a.Name, err)
	}
	metrics.ArtifactDownloadsTotal.WithLabelValues(a.Name, "ok").Inc()
	f.log.WithFields(logging.Fields{
		"artifact": a.Name,
		"path":     a.LocalPath,
		"took":     time.Since(start).String(),
	}).Info("artifact downloaded")
	return a.LocalPath, nil
}

// download streams a.URL into a temp file next to the destination.
func (f *Fetcher) download(ctx context.Context, a Artifact, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPermanent, err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: status %d", a.URL, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", errPermanent, err)
		}
		return "", err
	}

	out, err := os.CreateTemp(dir, "."+filepath.Base(a.LocalPath)+"-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
