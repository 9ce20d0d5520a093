package api

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAdminSessionsExpire(t *testing.T) {
	a := NewAdminSessions(AuthConfig{Admins: []string{"root"}, Password: "pw", Secret: "s"})
	defer a.Stop()

	clock := time.Unix(1_700_000_000, 0)
	a.now = func() time.Time { return clock }

	if _, _, err := a.Login("nobody", "pw"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for a non-admin, got %v", err)
	}
	token, session, err := a.Login("root", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if !session.ExpiresAt.Equal(clock.Add(SessionDuration)) {
		t.Errorf("unexpected expiry %v", session.ExpiresAt)
	}

	rec := httptest.NewRecorder()
	a.writeCookie(rec, token)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])
	if got := a.FromRequest(req); got == nil || got.Username != "root" {
		t.Fatalf("expected root from cookie, got %+v", got)
	}

	clock = clock.Add(SessionDuration + time.Second)
	if a.FromRequest(req) != nil {
		t.Error("expired session should not authenticate")
	}
	if n := a.sweep(); n != 1 {
		t.Errorf("expected one expired session swept, got %d", n)
	}
}

func TestAdminCookieFromOtherSecretRejected(t *testing.T) {
	a := NewAdminSessions(AuthConfig{Admins: []string{"root"}, Password: "pw", Secret: "one"})
	b := NewAdminSessions(AuthConfig{Admins: []string{"root"}, Password: "pw", Secret: "two"})
	defer a.Stop()
	defer b.Stop()

	token, _, err := a.Login("root", "pw")
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	a.writeCookie(rec, token)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(rec.Result().Cookies()[0])

	if _, err := b.tokenFrom(req); !errors.Is(err, errBadCookie) {
		t.Errorf("expected errBadCookie under another secret, got %v", err)
	}
}
