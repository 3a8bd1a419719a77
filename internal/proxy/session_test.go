package proxy

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"veil/filter"
)

func newStoreAt(now *time.Time) *sessionStore {
	return newSessionStore(filter.Config{}, func() time.Time { return *now })
}

func createSession(t *testing.T, store *sessionStore) (*session, *http.Cookie) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.ensure(w, r)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != sessionCookieName {
		t.Fatalf("expected one session cookie, got %v", cookies)
	}
	return sess, cookies[0]
}

func TestEnsureReusesSessionFromCookie(t *testing.T) {
	now := time.Now()
	store := newStoreAt(&now)
	sess, cookie := createSession(t, store)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	again, err := store.ensure(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if again.ID != sess.ID {
		t.Errorf("got session %s, want %s", again.ID, sess.ID)
	}
}

func TestSessionExpiry(t *testing.T) {
	now := time.Now()
	store := newStoreAt(&now)
	sess, cookie := createSession(t, store)

	now = now.Add(8 * 24 * time.Hour)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	fresh, err := store.ensure(httptest.NewRecorder(), r)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if fresh.ID == sess.ID {
		t.Error("expired session was reused")
	}
}

func TestKeyRotatesOnlyAfterAllTokensServed(t *testing.T) {
	now := time.Now()
	store := newStoreAt(&now)
	sess, _ := createSession(t, store)
	original := append([]byte(nil), sess.Key...)

	store.noteIssued(sess, 3)
	store.noteServed(sess)
	store.noteServed(sess)
	if !bytes.Equal(sess.Key, original) {
		t.Fatal("key rotated while tokens were still outstanding")
	}

	store.noteServed(sess)
	if bytes.Equal(sess.Key, original) {
		t.Error("key not rotated after all tokens served")
	}
}

func TestNewPageSupersedesOldAccounting(t *testing.T) {
	now := time.Now()
	store := newStoreAt(&now)
	sess, _ := createSession(t, store)
	original := append([]byte(nil), sess.Key...)

	store.noteIssued(sess, 5)
	store.noteServed(sess)

	// Navigating to a new page resets the ledger; the old page's
	// unserved tokens no longer block rotation.
	store.noteIssued(sess, 1)
	store.noteServed(sess)
	if bytes.Equal(sess.Key, original) {
		t.Error("key not rotated after the new page completed")
	}
}

func TestNoRotationWithoutIssuedTokens(t *testing.T) {
	now := time.Now()
	store := newStoreAt(&now)
	sess, _ := createSession(t, store)
	original := append([]byte(nil), sess.Key...)

	store.noteServed(sess)
	if !bytes.Equal(sess.Key, original) {
		t.Error("key rotated with no tokens issued")
	}
}

func TestUpdateConfig(t *testing.T) {
	now := time.Now()
	store := newStoreAt(&now)
	sess, _ := createSession(t, store)

	cfg := store.config(sess)
	cfg.Minimal = true
	cfg.Block = []string{"pinterest.com"}
	store.updateConfig(sess, cfg)

	got := store.config(sess)
	if !got.Minimal || len(got.Block) != 1 || got.Block[0] != "pinterest.com" {
		t.Errorf("config not updated: %+v", got)
	}
}
