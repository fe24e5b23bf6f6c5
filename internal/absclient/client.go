// Package absclient is the Audiobookshelf adapter consumed by the sync
// pipeline. It wraps plain HTTP calls with the shared rate limiter and
// semaphore.
package absclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/concurrency"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/ratelimit"
	"github.com/rohit-purandare/shelfbridge/internal/shelferrors"
)

// Library is one Audiobookshelf library.
type Library struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// itemMetadata is the nested media.metadata object of an ABS item.
type itemMetadata struct {
	Title   string   `json:"title"`
	Authors []Author `json:"authors"`
	ISBN    string   `json:"isbn"`
	ASIN    string   `json:"asin"`
}

// Author is one entry of an item's authors list.
type Author struct {
	Name string `json:"name"`
}

// itemMedia is the nested media object of an ABS item.
type itemMedia struct {
	Metadata   itemMetadata `json:"metadata"`
	Duration   float64      `json:"duration"`
	EBookFile  *struct{}    `json:"ebookFile,omitempty"`
}

// itemProgress is the nested progress object of an ABS item.
type itemProgress struct {
	ProgressPercentage float64 `json:"progress"`
	IsFinished         bool    `json:"isFinished"`
	CurrentTime        float64 `json:"currentTime"`
}

// Item is the subset of an Audiobookshelf library item the sync pipeline
// needsABS adapter contract.
type Item struct {
	ID          string       `json:"id"`
	Media       itemMedia    `json:"media"`
	Progress    itemProgress `json:"userMediaProgress"`
	Pages       int          `json:"pages"`
	CurrentPage int          `json:"currentPage"`
}

// Title returns the item's title, defaultingstep 1.
func (i Item) Title() string {
	if i.Media.Metadata.Title == "" {
		return "Unknown Title"
	}
	return i.Media.Metadata.Title
}

// Author returns the item's first listed author, defaulting to
// "Unknown Author" when none is present.
func (i Item) Author() string {
	if len(i.Media.Metadata.Authors) == 0 || i.Media.Metadata.Authors[0].Name == "" {
		return "Unknown Author"
	}
	return i.Media.Metadata.Authors[0].Name
}

// Format reports "audiobook" when the item has a listenable duration,
// "ebook" otherwise, driving the pipeline's page-vs-time progress write.
func (i Item) Format() string {
	if i.Media.Duration > 0 {
		return "audiobook"
	}
	return "ebook"
}

// Client is one user's Audiobookshelf connection.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *ratelimit.Limiter
	sem     *concurrency.Semaphore
	log     *logger.Logger
}

func New(baseURL, token string, limiter *ratelimit.Limiter, sem *concurrency.Semaphore, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		sem:     sem,
		log:     log,
	}
}

const rateLimitKey = "audiobookshelf"

func (c *Client) do(ctx context.Context, method, path string, out interface{}) error {
	if err := c.sem.Acquire(ctx); err != nil {
		return err
	}
	defer c.sem.Release()
	if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return shelferrors.Wrap(shelferrors.APITransient, err, "audiobookshelf request to %s failed", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return shelferrors.New(shelferrors.APIUnauthorized, "audiobookshelf auth failed: %s", resp.Status)
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return shelferrors.New(shelferrors.APITransient, "audiobookshelf transient error: %s", resp.Status)
	case resp.StatusCode >= 400:
		return shelferrors.New(shelferrors.UnknownError, "audiobookshelf error: %s: %s", resp.Status, string(body))
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// ListLibraries returns every library visible to the configured token.
func (c *Client) ListLibraries(ctx context.Context) ([]Library, error) {
	var result struct {
		Libraries []Library `json:"libraries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/libraries", &result); err != nil {
		return nil, err
	}
	return result.Libraries, nil
}

// ListItems returns up to max items (0 = unlimited) from libraryID,
// paginating in pageSize-sized requests.
func (c *Client) ListItems(ctx context.Context, libraryID string, pageSize, max int) ([]Item, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var all []Item
	page := 0
	for {
		var result struct {
			Results []Item `json:"results"`
			Total   int    `json:"total"`
		}
		path := fmt.Sprintf("/api/libraries/%s/items?include=progress&limit=%d&page=%d", libraryID, pageSize, page)
		if err := c.do(ctx, http.MethodGet, path, &result); err != nil {
			return nil, err
		}
		all = append(all, result.Results...)
		if max > 0 && len(all) >= max {
			return all[:max], nil
		}
		if len(result.Results) < pageSize || len(all) >= result.Total {
			return all, nil
		}
		page++
	}
}

// GetItem returns a single item by ID.
func (c *Client) GetItem(ctx context.Context, id string) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodGet, "/api/items/"+id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
