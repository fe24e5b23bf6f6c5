package syncengine

import (
	"context"
	"sync"

	"github.com/rohit-purandare/shelfbridge/internal/logger"
	"github.com/rohit-purandare/shelfbridge/internal/store"
)

// inFlightSet tracks (user, title_normalized) keys currently being
// processed so a second concurrent request for the same key is rejected
// rather than racing.
type inFlightSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newInFlightSet() *inFlightSet {
	return &inFlightSet{keys: make(map[string]struct{})}
}

func (s *inFlightSet) tryAcquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.keys[key]; busy {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *inFlightSet) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
}

// RunUser processes every item for one user through the pipeline using
// a fixed-size worker pool of `workers` goroutines (default 3).
func (p *Pipeline) RunUser(ctx context.Context, userID string, items []SourceItem, opts Options, workers int, completionThreshold float64) []Result {
	if workers <= 0 {
		workers = 3
	}
	if len(items) == 0 {
		return nil
	}

	inFlight := newInFlightSet()
	type job struct {
		index int
		item  SourceItem
	}
	jobs := make(chan job)
	results := make([]Result, len(items))

	var wg sync.WaitGroup
	var mu sync.Mutex

	worker := func() {
		defer wg.Done()
		for j := range jobs {
			key := identityKeyFor(userID, j.item)
			var r Result
			if !inFlight.tryAcquire(key) {
				r = Result{UserID: userID, Title: j.item.Title, Status: StatusSkipped, Reason: "race_condition_prevented"}
			} else {
				r = p.syncOneBook(ctx, userID, j.item, opts, completionThreshold)
				inFlight.release(key)
			}

			mu.Lock()
			results[j.index] = r
			mu.Unlock()

			if p.log != nil {
				p.log.Info("book sync finished", map[string]interface{}{
					"user":   userID,
					"title":  j.item.Title,
					"status": string(r.Status),
					"reason": r.Reason,
				})
			}
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go worker()
	}

	for i, item := range items {
		select {
		case jobs <- job{index: i, item: item}:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func identityKeyFor(userID string, item SourceItem) string {
	title := item.Title
	if title == "" {
		title = "Unknown Title"
	}
	return userID + "\x00" + store.NormalizeTitle(title)
}
