package services

import (
	"sync"
	"time"

	"github.com/temcen/shoprec/pkg/models"
)

type profileEntry struct {
	mu      sync.Mutex
	profile models.UserProfile
}

// ProfileStore keeps user profiles in memory. The map lock is held only to
// find or insert an entry; every mutation happens under that user's own lock,
// so events for different users never wait on each other.
type ProfileStore struct {
	mu      sync.RWMutex
	entries map[string]*profileEntry
	now     func() time.Time
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{
		entries: make(map[string]*profileEntry),
		now:     time.Now,
	}
}

func newUserProfile(userID string) models.UserProfile {
	return models.UserProfile{
		UserID:         userID,
		Viewed:         make(map[int64]struct{}),
		Purchased:      make(map[int64]struct{}),
		Ratings:        make(map[int64]int),
		CategoryCounts: make(map[int64]int),
	}
}

func (s *ProfileStore) lookup(userID string) (*profileEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	return e, ok
}

func (s *ProfileStore) entry(userID string) *profileEntry {
	if e, ok := s.lookup(userID); ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return e
	}
	e := &profileEntry{profile: newUserProfile(userID)}
	s.entries[userID] = e
	return e
}

func (s *ProfileStore) mutate(userID string, fn func(p *models.UserProfile)) {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.profile)
	e.profile.Version++
	e.profile.UpdatedAt = s.now()
}

func (s *ProfileStore) RecordView(userID string, productID int64) error {
	if err := validateIDs(userID, productID); err != nil {
		return err
	}
	s.mutate(userID, func(p *models.UserProfile) {
		p.Viewed[productID] = struct{}{}
	})
	return nil
}

func (s *ProfileStore) RecordPurchase(userID string, productID int64, categoryID *int64) error {
	if err := validateIDs(userID, productID); err != nil {
		return err
	}
	s.mutate(userID, func(p *models.UserProfile) {
		applyPurchase(p, productID, categoryID)
	})
	return nil
}

func (s *ProfileStore) RecordRating(userID string, productID int64, rating int) error {
	if err := validateIDs(userID, productID); err != nil {
		return err
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	s.mutate(userID, func(p *models.UserProfile) {
		p.Ratings[productID] = rating
	})
	return nil
}

// Hydrated reports whether the user's profile has already been merged with
// their stored order history.
func (s *ProfileStore) Hydrated(userID string) bool {
	e, ok := s.lookup(userID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.profile.Hydrated
}

// Hydrate merges stored order history into the profile. Products already
// recorded as purchased in this process are skipped so that a purchase seen
// both as an event and as a stored order is counted once. Users without any
// history are not materialized.
func (s *ProfileStore) Hydrate(userID string, history []models.InteractionRecord) {
	if len(history) == 0 {
		return
	}
	s.mutate(userID, func(p *models.UserProfile) {
		if p.Hydrated {
			return
		}
		known := make(map[int64]struct{}, len(p.Purchased))
		for id := range p.Purchased {
			known[id] = struct{}{}
		}
		for _, r := range history {
			if !r.Status.Eligible() {
				continue
			}
			if _, ok := known[r.ProductID]; ok {
				continue
			}
			applyPurchase(p, r.ProductID, r.CategoryID)
		}
		p.Hydrated = true
	})
}

// Get returns a copy of the user's profile.
func (s *ProfileStore) Get(userID string) (models.UserProfile, bool) {
	e, ok := s.lookup(userID)
	if !ok {
		return models.UserProfile{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyProfile(e.profile), true
}

// Range calls fn with a copy of every profile until fn returns false.
func (s *ProfileStore) Range(fn func(p models.UserProfile) bool) {
	s.mu.RLock()
	entries := make([]*profileEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		p := copyProfile(e.profile)
		e.mu.Unlock()
		if !fn(p) {
			return
		}
	}
}

func (s *ProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func applyPurchase(p *models.UserProfile, productID int64, categoryID *int64) {
	p.Purchased[productID] = struct{}{}
	p.PurchaseCount++
	if categoryID != nil {
		p.CategoryCounts[*categoryID]++
	}
}

func validateIDs(userID string, productID int64) error {
	if userID == "" {
		return ErrMissingUserID
	}
	if productID <= 0 {
		return ErrMissingProductID
	}
	return nil
}

func copyProfile(p models.UserProfile) models.UserProfile {
	out := p
	out.Viewed = make(map[int64]struct{}, len(p.Viewed))
	for k := range p.Viewed {
		out.Viewed[k] = struct{}{}
	}
	out.Purchased = make(map[int64]struct{}, len(p.Purchased))
	for k := range p.Purchased {
		out.Purchased[k] = struct{}{}
	}
	out.Ratings = make(map[int64]int, len(p.Ratings))
	for k, v := range p.Ratings {
		out.Ratings[k] = v
	}
	out.CategoryCounts = make(map[int64]int, len(p.CategoryCounts))
	for k, v := range p.CategoryCounts {
		out.CategoryCounts[k] = v
	}
	return out
}
