package session

import (
	"sync"
	"time"

	"github.com/dmendiola/wagate/internal/domain"
)

// Session is the runtime record for one uid: the exclusively owned client
// handle plus the lifecycle state around it. At most one live Session per
// uid exists at any time; the lifecycle enforces that under PerKeyLock.
type Session struct {
	UID    domain.UID
	Client domain.MessagingClient
	Token  string

	CreatedAt time.Time

	mu    sync.Mutex
	state domain.SessionState

	// qrTimer tears the session down if no authentication arrives before
	// the deadline. Reset on QR issuance, stopped on authentication.
	qrTimer *time.Timer

	// resolve delivers the Create outcome exactly once.
	resolveOnce sync.Once
	resolved    chan createResult
}

type createResult struct {
	qr  string
	err error
}

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// resolve completes the pending Create call. Later calls are no-ops, so a
// QR event, an auth failure and the deadline can all race safely.
func (s *Session) resolve(qr string, err error) {
	s.resolveOnce.Do(func() {
		s.resolved <- createResult{qr: qr, err: err}
		close(s.resolved)
	})
}

// Store maps uid → live session. It is the only shared mutable state in
// the gateway; all mutations happen while holding that uid's PerKeyLock.
type Store struct {
	mu       sync.RWMutex
	sessions map[domain.UID]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[domain.UID]*Session),
	}
}

func (s *Store) Get(uid domain.UID) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[uid]
	return sess, ok
}

func (s *Store) Put(uid domain.UID, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[uid] = sess
}

// Remove drops the uid's entry. Removing an absent uid is a no-op.
func (s *Store) Remove(uid domain.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, uid)
}

func (s *Store) Has(uid domain.UID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[uid]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
