package proxy

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"veil/filter"
	"veil/pathcipher"
)

const sessionCookieName = "VEIL_SESSION"

// session holds the per-user state: the path-encryption master key, the
// user's filter preferences, and the token accounting the key-rotation
// policy depends on.
type session struct {
	ID     string
	Key    []byte
	Config filter.Config

	// issued is the number of asset tokens embedded in the most recently
	// served page; served counts relay fetches completed since. When
	// served catches up with issued the key may rotate without orphaning
	// any outstanding token.
	issued    int
	served    int
	ExpiresAt time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	defaults filter.Config
	ttl      time.Duration
	clock    func() time.Time
}

func newSessionStore(defaults filter.Config, clock func() time.Time) *sessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &sessionStore{
		sessions: make(map[string]*session),
		defaults: defaults,
		ttl:      7 * 24 * time.Hour,
		clock:    clock,
	}
}

func (s *sessionStore) get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !sess.ExpiresAt.IsZero() && s.clock().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// ensure returns the request's session, creating one (and the cookie that
// names it) on first visit.
func (s *sessionStore) ensure(w http.ResponseWriter, r *http.Request) (*session, error) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c != nil {
		if sess, ok := s.get(c.Value); ok {
			return sess, nil
		}
	}
	key, err := pathcipher.NewKey()
	if err != nil {
		return nil, err
	}
	sess := &session{
		ID:        uuid.NewString(),
		Key:       key,
		Config:    s.defaults,
		ExpiresAt: s.clock().Add(s.ttl),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// cipher builds the session's path cipher from the current key.
func (s *sessionStore) cipher(sess *session) (*pathcipher.Cipher, error) {
	s.mu.Lock()
	key := append([]byte(nil), sess.Key...)
	s.mu.Unlock()
	return pathcipher.New(key)
}

// noteIssued records how many asset tokens the latest page embedded. Any
// earlier page's leftovers are superseded: tokens from a page the user
// navigated away from no longer block rotation.
func (s *sessionStore) noteIssued(sess *session, n int) {
	s.mu.Lock()
	sess.issued = n
	sess.served = 0
	s.mu.Unlock()
}

// noteServed counts one completed relay fetch and rotates the session key
// once every token of the current page has been served. Rotation never
// happens mid-page; a session that never completes a page simply keeps its
// key, which is correct, only less forward-secret.
func (s *sessionStore) noteServed(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.served++
	if sess.issued == 0 || sess.served < sess.issued {
		return
	}
	key, err := pathcipher.NewKey()
	if err != nil {
		return // keep the old key; rotation is advisory
	}
	sess.Key = key
	sess.issued = 0
	sess.served = 0
}

// updateConfig replaces the session's filter preferences.
func (s *sessionStore) updateConfig(sess *session, cfg filter.Config) {
	s.mu.Lock()
	sess.Config = cfg
	s.mu.Unlock()
}

// config returns a snapshot of the session's filter preferences.
func (s *sessionStore) config(sess *session) filter.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sess.Config
}
