// Package imagecache downloads supplier part images to a local directory before
// they are uploaded to the inventory server.
package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDownloadFailed wraps every failed download.
var ErrDownloadFailed = errors.New("imagecache: download failed")

// maxImageSize caps a single image download.
const maxImageSize = 20 << 20

var knownExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true}

// Cache stores downloaded images under a directory. It only ever removes files it
// downloaded itself, so dir may be shared with other content.
type Cache struct {
	dir    string
	http   *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	files []string
}

// New creates a Cache rooted at dir. A nil client gets a 30s timeout default.
func New(dir string, client *http.Client, logger *zap.Logger) *Cache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Cache{dir: dir, http: client, logger: logger.Named("imagecache")}
}

// Download fetches imageURL into the cache and returns the local file path.
// Protocol-relative URLs ("//host/img.jpg") are fetched over https.
func (c *Cache) Download(ctx context.Context, imageURL string) (string, error) {
	imageURL = strings.TrimSpace(imageURL)
	if strings.HasPrefix(imageURL, "//") {
		imageURL = "https:" + imageURL
	}
	u, err := url.Parse(imageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: invalid url %q", ErrDownloadFailed, imageURL)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("imagecache: create dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	// Some supplier CDNs refuse requests without a browser-like agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; synctree)")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s: status %d", ErrDownloadFailed, u.String(), resp.StatusCode)
	}

	name := uuid.NewString() + extensionFor(u.Path, resp.Header.Get("Content-Type"))
	dst := filepath.Join(c.dir, name)

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("imagecache: create file: %w", err)
	}
	n, copyErr := io.Copy(f, io.LimitReader(resp.Body, maxImageSize+1))
	closeErr := f.Close()
	if copyErr == nil && n > maxImageSize {
		copyErr = fmt.Errorf("image larger than %d bytes", maxImageSize)
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, errors.Join(copyErr, closeErr))
	}

	c.mu.Lock()
	c.files = append(c.files, dst)
	c.mu.Unlock()

	c.logger.Debug("image cached", zap.String("url", u.String()), zap.String("path", dst), zap.Int64("bytes", n))
	return dst, nil
}

// Clean removes the files downloaded by this Cache, leaving the directory and any
// other content in place.
func (c *Cache) Clean() error {
	c.mu.Lock()
	files := c.files
	c.files = nil
	c.mu.Unlock()

	var errs []error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("imagecache: remove %s: %w", filepath.Base(f), err))
		}
	}
	return errors.Join(errs...)
}

// extensionFor prefers a known extension from the URL path, then the content type, then ".jpg".
func extensionFor(urlPath, contentType string) string {
	if ext := strings.ToLower(path.Ext(urlPath)); knownExtensions[ext] {
		return ext
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		}
	}
	return ".jpg"
}
