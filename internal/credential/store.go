package credential

import (
	"errors"
	"sync"
	"time"
)

// ExpiryBuffer is the safety margin before exp at which a token is treated
// as no longer usable.
const ExpiryBuffer = 5 * time.Minute

// Status classifies the credential currently held by a Store.
type Status string

const (
	StatusMissing  Status = "missing"
	StatusValid    Status = "valid"
	StatusExpiring Status = "expiring"
	StatusExpired  Status = "expired"
	// StatusUnknown means the expiry could not be decoded; treated as
	// refresh-needed.
	StatusUnknown Status = "unknown"
)

var ErrIncompleteCredential = errors.New("credential: access and XSRF tokens are both required")

// Store owns the current Credential. Readers get copies; writers replace the
// whole value.
type Store struct {
	mu   sync.RWMutex
	cred Credential
	set  bool
	now  func() time.Time
}

// NewStore returns an empty Store. now may be nil to use time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

// Get returns a copy of the current credential.
func (s *Store) Get() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Replace installs c wholesale. Incomplete credentials are rejected and the
// store is left unchanged.
func (s *Store) Replace(c Credential) error {
	if !c.Complete() {
		return ErrIncompleteCredential
	}
	s.mu.Lock()
	s.cred = c
	s.set = true
	s.mu.Unlock()
	return nil
}

// Status classifies the held credential against the current time.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return StatusMissing
	}
	return classify(s.cred, s.now())
}

// IsValid reports whether the held credential can be used without refresh.
func (s *Store) IsValid() bool {
	return s.Status() == StatusValid
}

func classify(c Credential, now time.Time) Status {
	if c.ExpiresAt.IsZero() {
		return StatusUnknown
	}
	if !c.ExpiresAt.After(now) {
		return StatusExpired
	}
	if c.ExpiresAt.Add(-ExpiryBuffer).After(now) {
		return StatusValid
	}
	return StatusExpiring
}
