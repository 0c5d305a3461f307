package agent

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// HTTPPageSource snapshots a page by fetching its address over HTTP. It is
// what the `agent` command watches sites with; tests and embedded hosts can
// provide their own PageSource instead.
type HTTPPageSource struct {
	location  string
	userAgent string
	client    *http.Client

	mu    sync.Mutex
	title string
}

// NewHTTPPageSource builds a source for one page address.
func NewHTTPPageSource(location string, timeout time.Duration, userAgent string) *HTTPPageSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPPageSource{
		location:  location,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Location returns the watched address.
func (s *HTTPPageSource) Location() string {
	return s.location
}

// Title returns the <title> of the most recent snapshot.
func (s *HTTPPageSource) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Document fetches and parses the page.
func (s *HTTPPageSource) Document(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(s.userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	s.mu.Lock()
	s.title = strings.TrimSpace(doc.Find("title").First().Text())
	s.mu.Unlock()

	return doc, nil
}
