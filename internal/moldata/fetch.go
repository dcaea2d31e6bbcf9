package moldata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/snoopython/wradex/internal/ctxlog"
)

// Fetcher retrieves a data file by name from a remote catalog.
type Fetcher interface {
	Fetch(ctx context.Context, name string, w io.Writer) error
}

// HTTPFetcher downloads data files from BaseURL/<name>.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher returns a fetcher with a bounded client timeout.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// URL returns the catalog address of the named file.
func (f *HTTPFetcher) URL(name string) string {
	return strings.TrimRight(f.BaseURL, "/") + "/" + name
}

func (f *HTTPFetcher) Fetch(ctx context.Context, name string, w io.Writer) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(name), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDataNotFound, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s: %s", ErrDataNotFound, f.URL(name), resp.Status)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("%w: %s: reading body: %v", ErrDataNotFound, name, err)
	}
	return nil
}

// Open parses dir/name, downloading it with fetcher first when it is absent.
// A nil fetcher disables downloads.
func Open(ctx context.Context, dir, name string, fetcher Fetcher) (*Data, error) {
	path := filepath.Join(dir, name)

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if fetcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrDataNotFound, path)
		}
		if err := download(ctx, fetcher, dir, name); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	return ParseFile(path)
}

func download(ctx context.Context, fetcher Fetcher, dir, name string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("moldata not found locally, downloading", "file", name, "dir", dir)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, name+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fetcher.Fetch(ctx, name, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return err
	}
	logger.Debug("moldata downloaded", "file", name)
	return nil
}
