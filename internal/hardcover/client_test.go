package hardcover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohit-purandare/shelfbridge/internal/concurrency"
	"github.com/rohit-purandare/shelfbridge/internal/ratelimit"
	"github.com/rohit-purandare/shelfbridge/internal/syncengine"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	limiter := ratelimit.New(600, nil)
	t.Cleanup(limiter.Close)
	sem := concurrency.New(5)
	return New(ts.URL, "test-token", limiter, sem, nil)
}

func TestGetUserLibrary_ParsesEditionsAndStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"user_books":[{"id":1,"status_id":2,"edition_id":10,"book":{"id":5,"title":"Dune","editions":[{"id":10,"asin":"B001","isbn_10":null,"isbn_13":"9780000000000","reading_format_id":2}]}}]}}`))
	})

	entries, err := c.GetUserLibrary(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Dune", entries[0].Book.Title)
	require.Equal(t, "CURRENTLY_READING", entries[0].UserBook.Status)
	require.Equal(t, "B001", entries[0].Editions[0].ASIN)
	require.Equal(t, "audiobook", entries[0].Editions[0].Format)
}

func TestSearchBooksByASIN_ReturnsSearchResultEntries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"books":[{"id":7,"title":"Hail Mary","editions":[{"id":70,"asin":"B999","isbn_10":null,"isbn_13":null,"reading_format_id":2}]}]}}`))
	})

	entries, err := c.SearchBooksByASIN(context.Background(), "B999")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].UserBook)
	require.Equal(t, int64(70), entries[0].Editions[0].ID)
}

func TestExecute_GraphQLErrorSurfacesAsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"field not found"}]}`))
	})

	_, err := c.SearchBooksByASIN(context.Background(), "B1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "field not found")
}

func TestExecute_UnauthorizedMapsToAPIUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.GetUserLibrary(context.Background(), "user1")
	require.Error(t, err)
}

func TestAddBookToLibrary_CachesUserBookID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"insert_user_book":{"id":1,"user_book":{"id":42},"error":null}}}`))
	})

	userBookID, err := c.AddBookToLibrary(context.Background(), 5, "CURRENTLY_READING", 10)
	require.NoError(t, err)
	require.Equal(t, int64(42), userBookID)

	cached, ok := c.userBookIDCache.Get(10)
	require.True(t, ok)
	require.Equal(t, int64(42), cached)
}

func TestUpdateReadingProgress_AudiobookSendsSeconds(t *testing.T) {
	var captured string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		captured = string(body)
		w.Write([]byte(`{"data":{"insert_user_book_read":{"id":1,"error":null}}}`))
	})

	err := c.UpdateReadingProgress(context.Background(), 1, 10, syncengine.ProgressPayload{
		Format:          "audiobook",
		ProgressSeconds: 1200,
	})
	require.NoError(t, err)
	require.Contains(t, captured, "progress_seconds")
}

func TestMarkRead_SendsReadStatusID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"update_user_book":{"id":1,"error":null}}}`))
	})

	err := c.MarkRead(context.Background(), 1)
	require.NoError(t, err)
}
