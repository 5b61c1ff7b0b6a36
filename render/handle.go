package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wudi/pdfcapture/security"
)

var ErrNoSource = errors.New("document handle has no source")

// Handle identifies a document: a local path, an http(s) URL or bytes already
// in memory. Exactly one source is used, in the order Data, Path, URL.
type Handle struct {
	Path string
	URL  string
	Data []byte
	Name string
}

func FromPath(path string) Handle { return Handle{Path: path} }
func FromURL(url string) Handle   { return Handle{URL: url} }
func FromBytes(name string, data []byte) Handle {
	return Handle{Data: data, Name: name}
}

// String is a display name for logs and page titles.
func (h Handle) String() string {
	switch {
	case h.Name != "":
		return h.Name
	case h.Path != "":
		return filepath.Base(h.Path)
	case h.URL != "":
		return h.URL
	}
	return "document"
}

// Open returns the document bytes. Remote documents are fetched with client
// (http.DefaultClient when nil). Sources larger than maxSize fail with
// security.ErrLimitExceeded.
func (h Handle) Open(ctx context.Context, client *http.Client, maxSize int64) ([]byte, error) {
	switch {
	case h.Data != nil:
		if int64(len(h.Data)) > maxSize {
			return nil, fmt.Errorf("document is %d bytes: %w", len(h.Data), security.ErrLimitExceeded)
		}
		return h.Data, nil
	case h.Path != "":
		f, err := os.Open(h.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLimited(f, maxSize)
	case h.URL != "":
		return fetch(ctx, client, h.URL, maxSize)
	}
	return nil, ErrNoSource
}

func fetch(ctx context.Context, client *http.Client, url string, maxSize int64) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported url scheme: %s", url)
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	if resp.ContentLength > maxSize {
		return nil, fmt.Errorf("document is %d bytes: %w", resp.ContentLength, security.ErrLimitExceeded)
	}
	return readLimited(resp.Body, maxSize)
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}
	if n > maxSize {
		return nil, fmt.Errorf("document exceeds %d bytes: %w", maxSize, security.ErrLimitExceeded)
	}
	return buf.Bytes(), nil
}
