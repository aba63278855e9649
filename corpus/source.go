package corpus

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const defaultMaxBodyLen = 1 << 20

// Source yields the raw lines of a roast corpus.
type Source interface {
	ReadLines(ctx context.Context) ([]string, error)
	String() string
}

// NewSource returns an HTTPSource for http(s) locations and a FileSource otherwise.
func NewSource(location string, timeout time.Duration) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPSource(location, WithTimeout(timeout))
	}
	return FileSource{Path: location}
}

// FileSource reads a newline-delimited UTF-8 text file.
type FileSource struct {
	Path string
}

// ReadLines returns every line of the file. A missing file yields an error
// matching fs.ErrNotExist.
func (f FileSource) ReadLines(_ context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return scanLines(file)
}

func (f FileSource) String() string { return f.Path }

// HTTPSource fetches the corpus from a URL. Plain text bodies are split into
// lines as-is; HTML pages are reduced to their readable text first.
type HTTPSource struct {
	url        string
	httpClient *http.Client
	maxBodyLen int64
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// WithMaxBodyLength caps how many bytes of the response are read.
func WithMaxBodyLength(n int64) Option {
	return func(s *HTTPSource) {
		s.maxBodyLen = n
	}
}

// NewHTTPSource creates a source backed by rawURL.
func NewHTTPSource(rawURL string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		url:        rawURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxBodyLen: defaultMaxBodyLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPSource) String() string { return s.url }

// ReadLines downloads the corpus. A 404 is reported as fs.ErrNotExist so the
// loader treats it like a missing file.
func (s *HTTPSource) ReadLines(ctx context.Context) ([]string, error) {
	parsedURL, err := url.Parse(s.url)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", s.url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; RoastHimBot/1.0)")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("fetch %s: %w", s.url, fs.ErrNotExist)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyLen))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
		if err != nil {
			return nil, fmt.Errorf("parse content: %w", err)
		}
		return scanLines(strings.NewReader(article.TextContent))
	}

	return scanLines(bytes.NewReader(body))
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func scanLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), defaultMaxBodyLen)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return lines, nil
}
