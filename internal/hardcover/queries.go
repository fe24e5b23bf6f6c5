package hardcover

import (
	"context"
	"fmt"

	"github.com/rohit-purandare/shelfbridge/internal/matcher"
	"github.com/rohit-purandare/shelfbridge/internal/syncengine"
)

// GetUserLibrary returns every book already in userID's Hardcover
// library, shaped for the matcher's identifier index. Hardcover scopes
// user_books to the bearer token's account, so no user_id filter is
// sent on the wire; userID only threads through for logging.
func (c *Client) GetUserLibrary(ctx context.Context, userID string) ([]matcher.LibraryEntry, error) {
	const query = `
	query UserLibrary {
	  user_books {
	    id
	    status_id
	    edition_id
	    book {
	      id
	      title
	      editions {
	        id
	        asin
	        isbn_10
	        isbn_13
	        reading_format_id
	      }
	    }
	  }
	}`

	var result struct {
		UserBooks []struct {
			ID        int64   `json:"id"`
			StatusID  int     `json:"status_id"`
			EditionID *int64  `json:"edition_id"`
			Book      rawBook `json:"book"`
		} `json:"user_books"`
	}

	if c.log != nil {
		c.log.Debug("fetching hardcover library", map[string]interface{}{"user": userID})
	}
	if err := c.execute(ctx, query, nil, &result); err != nil {
		return nil, err
	}

	entries := make([]matcher.LibraryEntry, 0, len(result.UserBooks))
	for _, ub := range result.UserBooks {
		editions := make([]matcher.Edition, 0, len(ub.Book.Editions))
		for _, e := range ub.Book.Editions {
			editions = append(editions, editionFromRaw(e))
		}
		var editionID int64
		if ub.EditionID != nil {
			editionID = *ub.EditionID
		}
		entries = append(entries, matcher.LibraryEntry{
			UserBook: &matcher.UserBook{
				ID:        ub.ID,
				BookID:    ub.Book.ID,
				Status:    statusIDToName(ub.StatusID),
				EditionID: editionID,
			},
			Book:     matcher.BookSummary{ID: ub.Book.ID, Title: ub.Book.Title},
			Editions: editions,
		})
	}
	return entries, nil
}

func statusIDToName(id int) string {
	for name, sid := range statusNameToID {
		if sid == id && name != "FINISHED" {
			return name
		}
	}
	return "UNKNOWN"
}

// SearchBooksByASIN looks up editions by ASIN across all of Hardcover,
// not just the user's library, for auto-add candidates.
func (c *Client) SearchBooksByASIN(ctx context.Context, asin string) ([]matcher.LibraryEntry, error) {
	const query = `
	query BookByASIN($asin: String!) {
	  books(where: { editions: { asin: { _eq: $asin } } }, limit: 5) {
	    id
	    title
	    editions(where: { asin: { _eq: $asin } }, limit: 1) {
	      id
	      asin
	      isbn_10
	      isbn_13
	      reading_format_id
	    }
	  }
	}`
	return c.searchBooks(ctx, query, map[string]interface{}{"asin": asin})
}

// SearchBooksByISBN looks up editions by ISBN-10 or ISBN-13.
func (c *Client) SearchBooksByISBN(ctx context.Context, isbn string) ([]matcher.LibraryEntry, error) {
	const query = `
	query BookByISBN($isbn: String!) {
	  books(where: { editions: { _or: [{ isbn_13: { _eq: $isbn } }, { isbn_10: { _eq: $isbn } }] } }, limit: 5) {
	    id
	    title
	    editions(where: { _or: [{ isbn_13: { _eq: $isbn } }, { isbn_10: { _eq: $isbn } }] }, limit: 1) {
	      id
	      asin
	      isbn_10
	      isbn_13
	      reading_format_id
	    }
	  }
	}`
	return c.searchBooks(ctx, query, map[string]interface{}{"isbn": isbn})
}

// SearchBooksForMatching runs the tier-3 fuzzy search fallback,
// searching all of Hardcover by case-insensitive title substring; author
// is not part of the query.
func (c *Client) SearchBooksForMatching(ctx context.Context, title, author string) ([]matcher.LibraryEntry, error) {
	const query = `
	query BookByTitle($title: String!) {
	  books(where: { title: { _ilike: $title } }, limit: 20) {
	    id
	    title
	    editions(limit: 3) {
	      id
	      asin
	      isbn_10
	      isbn_13
	      reading_format_id
	    }
	  }
	}`
	return c.searchBooks(ctx, query, map[string]interface{}{"title": "%" + title + "%"})
}

func (c *Client) searchBooks(ctx context.Context, query string, variables map[string]interface{}) ([]matcher.LibraryEntry, error) {
	var result struct {
		Books []rawBook `json:"books"`
	}
	if err := c.execute(ctx, query, variables, &result); err != nil {
		return nil, err
	}
	entries := make([]matcher.LibraryEntry, 0, len(result.Books))
	for _, b := range result.Books {
		editions := make([]matcher.Edition, 0, len(b.Editions))
		for _, e := range b.Editions {
			editions = append(editions, editionFromRaw(e))
		}
		entries = append(entries, matcher.LibraryEntry{
			UserBook: nil,
			Book:     matcher.BookSummary{ID: b.ID, Title: b.Title},
			Editions: editions,
		})
	}
	return entries, nil
}

// AddBookToLibrary adds bookID/editionID to the user's library under
// status, returning the new user_book id.
func (c *Client) AddBookToLibrary(ctx context.Context, bookID int64, status string, editionID int64) (int64, error) {
	statusID, ok := statusNameToID[status]
	if !ok {
		return 0, fmt.Errorf("hardcover: unknown status %q", status)
	}

	const mutation = `
	mutation InsertUserBook($object: UserBookCreateInput!) {
	  insert_user_book(object: $object) {
		id
		user_book { id }
		error
	  }
	}`
	variables := map[string]interface{}{
		"object": map[string]interface{}{
			"book_id":    bookID,
			"edition_id": editionID,
			"status_id":  statusID,
		},
	}

	var result struct {
		InsertUserBook struct {
			UserBook struct {
				ID int64 `json:"id"`
			} `json:"user_book"`
			Error *string `json:"error"`
		} `json:"insert_user_book"`
	}
	if err := c.execute(ctx, mutation, variables, &result); err != nil {
		return 0, err
	}
	if result.InsertUserBook.Error != nil {
		return 0, fmt.Errorf("hardcover: insert_user_book: %s", *result.InsertUserBook.Error)
	}
	c.userBookIDCache.Set(editionID, result.InsertUserBook.UserBook.ID, userBookIDCacheTTL)
	return result.InsertUserBook.UserBook.ID, nil
}

// UpdateReadingProgress records the current position via
// insert_user_book_read, the same mutation the user_book_read history
// view reads back from.
func (c *Client) UpdateReadingProgress(ctx context.Context, userBookID, editionID int64, payload syncengine.ProgressPayload) error {
	userBookRead := map[string]interface{}{
		"edition_id": editionID,
	}
	if payload.Format == "audiobook" {
		userBookRead["progress_seconds"] = int(payload.ProgressSeconds)
	} else if payload.TotalPages > 0 {
		userBookRead["progress_pages"] = payload.CurrentPage
	}

	const mutation = `
	mutation InsertUserBookRead($user_book_id: Int!, $user_book_read: DatesReadInput!) {
	  insert_user_book_read(user_book_id: $user_book_id, user_book_read: $user_book_read) {
		id
		error
	  }
	}`
	variables := map[string]interface{}{
		"user_book_id":   userBookID,
		"user_book_read": userBookRead,
	}

	var result struct {
		InsertUserBookRead struct {
			Error *string `json:"error"`
		} `json:"insert_user_book_read"`
	}
	if err := c.execute(ctx, mutation, variables, &result); err != nil {
		return err
	}
	if result.InsertUserBookRead.Error != nil {
		return fmt.Errorf("hardcover: insert_user_book_read: %s", *result.InsertUserBookRead.Error)
	}
	return nil
}

// MarkRead flips a user_book's status to READ.
func (c *Client) MarkRead(ctx context.Context, userBookID int64) error {
	const mutation = `
	mutation UpdateUserBookStatus($id: Int!, $status_id: Int!) {
	  update_user_book(id: $id, object: { status_id: $status_id }) {
		id
		error
	  }
	}`
	variables := map[string]interface{}{
		"id":        userBookID,
		"status_id": statusNameToID["READ"],
	}
	var result struct {
		UpdateUserBook struct {
			Error *string `json:"error"`
		} `json:"update_user_book"`
	}
	if err := c.execute(ctx, mutation, variables, &result); err != nil {
		return err
	}
	if result.UpdateUserBook.Error != nil {
		return fmt.Errorf("hardcover: update_user_book: %s", *result.UpdateUserBook.Error)
	}
	return nil
}

// StartNewReadingSession flips status to CURRENTLY_READING, used when a
// reread begins after a prior completion.
func (c *Client) StartNewReadingSession(ctx context.Context, userBookID, editionID int64) error {
	const mutation = `
	mutation UpdateUserBookStatus($id: Int!, $status_id: Int!, $edition_id: Int!) {
	  update_user_book(id: $id, object: { status_id: $status_id, edition_id: $edition_id }) {
		id
		error
	  }
	}`
	variables := map[string]interface{}{
		"id":         userBookID,
		"status_id":  statusNameToID["CURRENTLY_READING"],
		"edition_id": editionID,
	}
	var result struct {
		UpdateUserBook struct {
			Error *string `json:"error"`
		} `json:"update_user_book"`
	}
	if err := c.execute(ctx, mutation, variables, &result); err != nil {
		return err
	}
	if result.UpdateUserBook.Error != nil {
		return fmt.Errorf("hardcover: update_user_book: %s", *result.UpdateUserBook.Error)
	}
	return nil
}
