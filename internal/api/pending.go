package api

import (
	"sync"

	"github.com/xaenox/diplomat-bot/internal/models"
)

const defaultPendingLimit = 1000

type pendingEntry struct {
	owner      string
	suggestion *models.Suggestion
}

// pendingStore keeps suggestions the server issued until feedback arrives.
// When full, the oldest entry is evicted.
type pendingStore struct {
	mu      sync.Mutex
	limit   int
	entries map[string]pendingEntry
	order   []string
}

func newPendingStore(limit int) *pendingStore {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	return &pendingStore{
		limit:   limit,
		entries: make(map[string]pendingEntry),
	}
}

func (p *pendingStore) put(owner string, s *models.Suggestion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[s.ID]; !ok {
		p.order = append(p.order, s.ID)
	}
	p.entries[s.ID] = pendingEntry{owner: owner, suggestion: s}
	for len(p.order) > p.limit {
		delete(p.entries, p.order[0])
		p.order = p.order[1:]
	}
}

// take removes the suggestion if it exists and belongs to owner.
func (p *pendingStore) take(owner, id string) (*models.Suggestion, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok || e.owner != owner {
		return nil, false
	}
	delete(p.entries, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return e.suggestion, true
}

// rename moves pending suggestions to a new owner after a username change.
func (p *pendingStore) rename(from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		if e.owner == from {
			e.owner = to
			p.entries[id] = e
		}
	}
}

func (p *pendingStore) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
