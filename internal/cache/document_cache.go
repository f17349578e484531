// Package cache keeps recently used document views in memory so a regression run does not
// re-read the same OCR payload for the original and the candidate pattern.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/joseph-ayodele/invoice-rules/internal/document"
)

// DocumentStore decorates a document.Store with an expiring in-process cache. Views are
// treated as read-only by every consumer, so cached pointers are shared.
type DocumentStore struct {
	next   document.Store
	client *gocache.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

func NewDocumentStore(next document.Store, ttl, cleanup time.Duration) *DocumentStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if cleanup <= 0 {
		cleanup = 2 * ttl
	}
	return &DocumentStore{next: next, client: gocache.New(ttl, cleanup)}
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*document.View, error) {
	if v, ok := s.client.Get(id); ok {
		s.hits.Add(1)
		return v.(*document.View), nil
	}
	s.misses.Add(1)
	view, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.client.SetDefault(id, view)
	return view, nil
}

// Invalidate drops id so the next Get reads through.
func (s *DocumentStore) Invalidate(id string) {
	s.client.Delete(id)
}

// Stats reports hits, misses and the current item count.
func (s *DocumentStore) Stats() (hits, misses int64, items int) {
	return s.hits.Load(), s.misses.Load(), s.client.ItemCount()
}
