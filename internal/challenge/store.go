// Package challenge keeps issued captcha answers until they are verified.
package challenge

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kyiku/textcaptcha/internal/util"
)

// MaxAttempts is the number of wrong answers a challenge accepts before it is
// discarded.
const MaxAttempts = 3

var (
	// ErrNotFound is returned for unknown or already used challenges.
	ErrNotFound = errors.New("challenge not found")
	// ErrExpired is returned when a challenge outlived the store expiry.
	ErrExpired = errors.New("challenge expired")
)

// Challenge is an issued captcha and its expected answer.
type Challenge struct {
	ID        string
	Answer    string
	CreatedAt time.Time
	Attempts  int
}

// Result is the outcome of a verification.
type Result struct {
	OK        bool
	Remaining int
}

// Store manages challenges in memory.
type Store struct {
	challenges map[string]*Challenge
	mu         sync.Mutex
	expiry     time.Duration // 0 means no expiry
	now        func() time.Time
}

// NewStore creates a new Store with no expiry.
func NewStore() *Store {
	return NewStoreWithExpiry(0)
}

// NewStoreWithExpiry creates a new Store with the specified expiry duration.
func NewStoreWithExpiry(expiry time.Duration) *Store {
	return &Store{
		challenges: make(map[string]*Challenge),
		expiry:     expiry,
		now:        time.Now,
	}
}

// Create stores a new challenge for answer and returns it.
func (s *Store) Create(answer string) Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &Challenge{
		ID:        uuid.New().String(),
		Answer:    answer,
		CreatedAt: s.now(),
	}
	s.challenges[c.ID] = c

	return *c
}

// Get retrieves a challenge by ID.
// Returns false if the challenge does not exist or has expired.
func (s *Store) Get(id string) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id)
	if err != nil {
		return Challenge{}, false
	}
	return *c, true
}

// Verify compares answer with the stored one. A challenge is removed once it
// is solved or has used up MaxAttempts.
func (s *Store) Verify(id, answer string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.lookup(id)
	if err != nil {
		return Result{}, err
	}

	if util.AnswerMatch(answer, c.Answer) {
		delete(s.challenges, id)
		return Result{OK: true}, nil
	}

	c.Attempts++
	remaining := MaxAttempts - c.Attempts
	if remaining <= 0 {
		delete(s.challenges, id)
		remaining = 0
	}
	return Result{OK: false, Remaining: remaining}, nil
}

// Delete removes a challenge by ID.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
}

// Count returns the number of stored challenges, expired ones included.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Cleanup removes expired challenges and returns how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiry == 0 {
		return 0
	}

	removed := 0
	for id, c := range s.challenges {
		if s.expired(c) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed
}

// lookup must be called with the lock held. Expired entries are deleted.
func (s *Store) lookup(id string) (*Challenge, error) {
	c, exists := s.challenges[id]
	if !exists {
		return nil, ErrNotFound
	}

	// Check expiry if set
	if s.expired(c) {
		delete(s.challenges, id)
		return nil, ErrExpired
	}
	return c, nil
}

func (s *Store) expired(c *Challenge) bool {
	return s.expiry > 0 && s.now().Sub(c.CreatedAt) > s.expiry
}
