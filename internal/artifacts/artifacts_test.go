package artifacts

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastFetcher() *Fetcher {
	return NewFetcher(Options{Retries: 2, RetryDelay: time.Millisecond})
}

func TestEnsureExistingPathSkipsDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	got, err := fastFetcher().Ensure(context.Background(), Artifact{Name: "tokenizer", LocalPath: path, URL: "http://127.0.0.1:1/unused"})
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestEnsureMissingWithoutURL(t *testing.T) {
	_, err := fastFetcher().Ensure(context.Background(), Artifact{Name: "model", LocalPath: filepath.Join(t.TempDir(), "m")})
	require.Error(t, err)
}

func TestEnsureDownloadsFileOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"config": {}}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "nested", "tokenizer.json")
	a := Artifact{Name: "tokenizer", LocalPath: path, URL: srv.URL}
	f := fastFetcher()
	for i := 0; i < 2; i++ {
		_, err := f.Ensure(context.Background(), a)
		require.NoError(t, err)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"config": {}}`, string(data))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".tokenizer.json-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEnsureRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "file")
	_, err := fastFetcher().Ensure(context.Background(), Artifact{Name: "file", LocalPath: path, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnsureDoesNotRetryNotFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "file")
	_, err := fastFetcher().Ensure(context.Background(), Artifact{Name: "file", LocalPath: path, URL: srv.URL})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestEnsureExtractsArchive(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"blstm_model/saved_model.pb":            "pb",
		"blstm_model/variables/variables.index": "idx",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "saved_model", "blstm_model")
	_, err := fastFetcher().Ensure(context.Background(), Artifact{Name: "model", LocalPath: dest, URL: srv.URL, Archive: true})
	require.NoError(t, err)

	pb, err := os.ReadFile(filepath.Join(dest, "saved_model.pb"))
	require.NoError(t, err)
	assert.Equal(t, "pb", string(pb))
	_, err = os.Stat(filepath.Join(dest, "variables", "variables.index"))
	require.NoError(t, err)
}

func TestEnsureRejectsEscapingArchive(t *testing.T) {
	archive := tarGz(t, map[string]string{"../evil": "x"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model")
	_, err := fastFetcher().Ensure(context.Background(), Artifact{Name: "model", LocalPath: dest, URL: srv.URL, Archive: true})
	require.Error(t, err)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsureConcurrentCallersDownloadOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	f := fastFetcher()
	a := Artifact{Name: "file", LocalPath: filepath.Join(t.TempDir(), "file"), URL: srv.URL}
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Ensure(context.Background(), a)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k", time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	unlock, err = l.Lock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}

// expiredLocker grants every caller the lock at once, as an expired Redis key would.
type expiredLocker struct{}

func (expiredLocker) Lock(context.Context, string, time.Duration) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}

func TestEnsureArchiveInstalledByOtherHolder(t *testing.T) {
	archive := tarGz(t, map[string]string{"blstm_model/saved_model.pb": "pb"})
	var arrived sync.WaitGroup
	arrived.Add(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold both downloads until each caller is past the lock.
		arrived.Done()
		arrived.Wait()
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "saved_model", "blstm_model")
	a := Artifact{Name: "model", LocalPath: dest, URL: srv.URL, Archive: true}
	f := NewFetcher(Options{Locker: expiredLocker{}, Retries: 0})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.Ensure(context.Background(), a)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	pb, err := os.ReadFile(filepath.Join(dest, "saved_model.pb"))
	require.NoError(t, err)
	assert.Equal(t, "pb", string(pb))
}

func TestNewFetcherLockOutlivesDownload(t *testing.T) {
	f := NewFetcher(Options{LockTTL: time.Minute, Timeout: 10 * time.Minute})
	assert.GreaterOrEqual(t, f.lockTTL, f.timeout)
}
