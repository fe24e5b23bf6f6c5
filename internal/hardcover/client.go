// Package hardcover is the Hardcover adapter consumed by the sync
// pipeline. Like the Audiobookshelf adapter it wraps the shared rate
// limiter and semaphore; unlike it, every call is a single GraphQL
// request executed over a raw HTTP POST with a string query and a
// variables map rather than through a reflection-based GraphQL client.
package hardcover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rohit-purandare/shelfbridge/internal/cache"
	"github.com/rohit-purandare/shelfbridge/internal/concurrency"
	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/matcher"
	"github.com/rohit-purandare/shelfbridge/internal/ratelimit"
	"github.com/rohit-purandare/shelfbridge/internal/shelferrors"
)

// statusNameToID mirrors Hardcover's user_book status_id values.
var statusNameToID = map[string]int{
	"WANT_TO_READ":      1,
	"CURRENTLY_READING": 2,
	"READ":              3,
	"FINISHED":          3,
}

// readingFormatID selects the edition reading_format_id Hardcover uses
// to distinguish audiobook/ebook/physical editions.
var readingFormatID = map[string]int{
	"audiobook": 2,
	"ebook":     4,
	"print":     1,
}

const rateLimitKey = "hardcover"

const userBookIDCacheTTL = 24 * time.Hour

// Client is one user's Hardcover GraphQL connection.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *ratelimit.Limiter
	sem     *concurrency.Semaphore
	log     *logger.Logger

	userBookIDCache cache.Cache[int64, int64] // editionID -> userBookID
}

const DefaultBaseURL = "https://api.hardcover.app/v1/graphql"

func New(baseURL, token string, limiter *ratelimit.Limiter, sem *concurrency.Semaphore, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:         baseURL,
		token:           token,
		http:            &http.Client{Timeout: 30 * time.Second},
		limiter:         limiter,
		sem:             sem,
		log:             log,
		userBookIDCache: cache.NewMemoryCache[int64, int64](log),
	}
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// execute runs a single GraphQL operation (query or mutation, there is
// no wire-level distinction) and unmarshals its data field into out.
func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	if err := c.sem.Acquire(ctx); err != nil {
		return err
	}
	defer c.sem.Release()
	if err := c.limiter.Wait(ctx, rateLimitKey); err != nil {
		return err
	}

	if variables == nil {
		variables = map[string]interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{"query": query, "variables": variables})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return shelferrors.Wrap(shelferrors.APITransient, err, "hardcover request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return shelferrors.New(shelferrors.APIUnauthorized, "hardcover auth failed: %s", resp.Status)
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return shelferrors.New(shelferrors.APITransient, "hardcover transient error: %s", resp.Status)
	case resp.StatusCode >= 400:
		return shelferrors.New(shelferrors.UnknownError, "hardcover error: %s: %s", resp.Status, string(respBody))
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("hardcover: unmarshal response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return shelferrors.New(shelferrors.UnknownError, "hardcover graphql error: %s", gqlResp.Errors[0].Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(gqlResp.Data, out)
}

func editionFromRaw(e rawEdition) matcher.Edition {
	format := ""
	for name, id := range readingFormatID {
		if e.ReadingFormatID != nil && *e.ReadingFormatID == id {
			format = name
			break
		}
	}
	return matcher.Edition{
		ID:     e.ID,
		ASIN:   stringOrEmpty(e.ASIN),
		ISBN10: stringOrEmpty(e.ISBN10),
		ISBN13: stringOrEmpty(e.ISBN13),
		Format: format,
	}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type rawEdition struct {
	ID              int64   `json:"id"`
	ASIN            *string `json:"asin"`
	ISBN10          *string `json:"isbn_10"`
	ISBN13          *string `json:"isbn_13"`
	ReadingFormatID *int    `json:"reading_format_id"`
}

type rawBook struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Editions []rawEdition `json:"editions"`
}
