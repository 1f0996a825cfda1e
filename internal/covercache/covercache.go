// Package covercache implements component C: a write-through LRU over
// on-disk cover images keyed by song id, grounded on the teacher's
// internal/cache.LRU generalized to a {path, contentType} value and the
// teacher's HTTP-fetch-with-redirect pattern used elsewhere in its media
// pipeline.
package covercache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/syncwave/syncwave/internal/breaker"
	"github.com/syncwave/syncwave/internal/cache"
	"github.com/syncwave/syncwave/internal/logging"
)

const capacity = 500

// Entry is the LRU value: the on-disk path and the content type to serve it
// with.
type Entry struct {
	Path        string
	ContentType string
}

// Cache is the cover-image cache (spec §4.C).
type Cache struct {
	dir     string
	lru     *cache.LRU[Entry]
	client  *http.Client
	breaker *breaker.Breaker[Entry]
}

// New creates a cache rooted at dir, creating it if necessary.
func New(dir string, fetchTimeout time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("covercache: create dir: %w", err)
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	c := &Cache{
		dir: dir,
		lru: cache.NewLRU[Entry](capacity, 10*365*24*time.Hour),
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > 1 {
					return fmt.Errorf("covercache: stopped after one redirect")
				}
				return nil
			},
		},
	}
	c.breaker = breaker.New[Entry](breaker.DefaultConfig("cover-fetch"))
	return c, nil
}

// GetCachedCover returns the entry for songID, validating the file still
// exists on disk and falling back to a directory scan on LRU miss (spec
// §4.C getCachedCover).
func (c *Cache) GetCachedCover(songID string) (Entry, bool) {
	if entry, ok := c.lru.Get(songID); ok {
		if fileExists(entry.Path) {
			return entry, true
		}
		c.lru.Remove(songID)
	}

	for _, ext := range []string{"jpg", "png", "webp", "gif"} {
		path := filepath.Join(c.dir, songID+"."+ext)
		if fileExists(path) {
			entry := Entry{Path: path, ContentType: contentTypeForExt(ext)}
			c.lru.Add(songID, entry)
			return entry, true
		}
	}
	return Entry{}, false
}

// CacheCover downloads url, storing it under songID and registering it in
// the LRU (spec §4.C cacheCover). Follows one level of redirect, infers the
// extension from Content-Type then URL suffix, defaulting to jpg. Any
// partial file is unlinked on failure.
func (c *Cache) CacheCover(ctx context.Context, songID, url string) (Entry, error) {
	resp, err := c.breaker.Execute(func() (Entry, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Entry{}, fmt.Errorf("covercache: build request: %w", err)
		}
		r, err := c.client.Do(req)
		if err != nil {
			return Entry{}, fmt.Errorf("covercache: fetch %s: %w", url, err)
		}
		defer r.Body.Close()
		if r.StatusCode != http.StatusOK {
			return Entry{}, fmt.Errorf("covercache: fetch %s: status %d", url, r.StatusCode)
		}

		ext := extFromContentType(r.Header.Get("Content-Type"))
		if ext == "" {
			ext = extFromURL(url)
		}
		if ext == "" {
			ext = "jpg"
		}

		path := filepath.Join(c.dir, songID+"."+ext)
		f, err := os.Create(path)
		if err != nil {
			return Entry{}, fmt.Errorf("covercache: create file: %w", err)
		}
		if _, err := io.Copy(f, r.Body); err != nil {
			f.Close()
			os.Remove(path)
			return Entry{}, fmt.Errorf("covercache: write file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return Entry{}, fmt.Errorf("covercache: close file: %w", err)
		}

		return Entry{Path: path, ContentType: contentTypeForExt(ext)}, nil
	})
	if err != nil {
		logging.Warn().Err(err).Str("songId", songID).Msg("covercache: cache fill failed")
		return Entry{}, err
	}

	c.lru.Add(songID, resp)
	return resp, nil
}

// The client built in New follows a single redirect: its CheckRedirect
// fails the fetch when a second redirect is returned.

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

func extFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return "jpg"
	case strings.Contains(ct, "png"):
		return "png"
	case strings.Contains(ct, "webp"):
		return "webp"
	case strings.Contains(ct, "gif"):
		return "gif"
	default:
		return ""
	}
}

func extFromURL(url string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.SplitN(url, "?", 2)[0]), "."))
	switch ext {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "webp", "gif":
		return ext
	default:
		return ""
	}
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
