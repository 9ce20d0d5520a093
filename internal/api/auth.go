package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"arena-shooter/internal/logger"
)

const (
	// SessionCookieName carries the signed admin token.
	SessionCookieName = "arena_admin_session"

	// SessionDuration is how long an admin login lasts.
	SessionDuration = 24 * time.Hour

	sweepInterval = 10 * time.Minute
)

// ErrBadCredentials is returned by Login for an unknown admin or wrong password.
var ErrBadCredentials = errors.New("invalid admin credentials")

var errBadCookie = errors.New("invalid admin cookie")

// AdminSession represents an authenticated admin
type AdminSession struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *AdminSession) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AuthConfig configures admin authentication.
type AuthConfig struct {
	Admins       []string
	Password     string // empty disables login
	Secret       string // empty generates a per-process key
	SecureCookie bool   // set behind HTTPS
}

// AdminSessions issues signed cookies to admins who log in with the shared
// admin password. Only usernames in the admin list may log in.
//
// The cookie value is "<token>.<mac>" where mac is an HMAC-SHA256 of the
// token under the server secret. Tokens are looked up server side, so a
// logout or restart invalidates them even while the signature still holds.
type AdminSessions struct {
	cfg    AuthConfig
	secret []byte
	admins map[string]struct{}
	now    func() time.Time
	log    *logrus.Entry

	mu     sync.RWMutex
	tokens map[string]*AdminSession

	stop     chan struct{}
	stopOnce sync.Once
}

// NewAdminSessions creates the admin session store and starts its expiry
// sweeper. Call Stop to end it.
func NewAdminSessions(cfg AuthConfig) *AdminSessions {
	a := &AdminSessions{
		cfg:    cfg,
		secret: []byte(cfg.Secret),
		admins: make(map[string]struct{}, len(cfg.Admins)),
		now:    time.Now,
		log:    logger.With("auth"),
		tokens: make(map[string]*AdminSession),
		stop:   make(chan struct{}),
	}
	if len(a.secret) == 0 {
		a.secret = randomBytes(32)
		a.log.Debug("Generated a per-process cookie secret")
	}
	for _, name := range cfg.Admins {
		a.admins[name] = struct{}{}
	}

	go a.sweepLoop()
	return a
}

// Stop ends the expiry sweeper.
func (a *AdminSessions) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Login checks credentials and returns a new token with its session.
func (a *AdminSessions) Login(username, password string) (string, *AdminSession, error) {
	if a.cfg.Password == "" {
		return "", nil, fmt.Errorf("%w: admin login disabled", ErrBadCredentials)
	}
	if _, ok := a.admins[username]; !ok {
		return "", nil, ErrBadCredentials
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) != 1 {
		return "", nil, ErrBadCredentials
	}

	now := a.now()
	token := hex.EncodeToString(randomBytes(32))
	session := &AdminSession{Username: username, CreatedAt: now, ExpiresAt: now.Add(SessionDuration)}

	a.mu.Lock()
	a.tokens[token] = session
	a.mu.Unlock()

	a.log.WithField("user", username).Info("🔐 Admin session created")
	return token, session, nil
}

// Logout forgets token.
func (a *AdminSessions) Logout(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

// lookup returns the live session for token, or nil.
func (a *AdminSessions) lookup(token string) *AdminSession {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.tokens[token]
	if s == nil || s.expired(a.now()) {
		return nil
	}
	return s
}

// FromRequest returns the admin behind the request cookie, or nil.
func (a *AdminSessions) FromRequest(r *http.Request) *AdminSession {
	token, err := a.tokenFrom(r)
	if err != nil {
		return nil
	}
	return a.lookup(token)
}

func (a *AdminSessions) tokenFrom(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", err
	}
	token, mac, ok := strings.Cut(c.Value, ".")
	if !ok {
		return "", errBadCookie
	}
	want := a.sign(token)
	if !hmac.Equal([]byte(mac), []byte(want)) {
		return "", errBadCookie
	}
	return token, nil
}

func (a *AdminSessions) sign(token string) string {
	h := hmac.New(sha256.New, a.secret)
	h.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// writeCookie sets the session cookie; an empty token clears it.
func (a *AdminSessions) writeCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     SessionCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
	} else {
		c.Value = token + "." + a.sign(token)
		c.MaxAge = int(SessionDuration.Seconds())
	}
	http.SetCookie(w, c)
}

func (a *AdminSessions) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if n := a.sweep(); n > 0 {
				a.log.WithField("expired", n).Debug("Swept admin sessions")
			}
		}
	}
}

// sweep drops expired sessions and returns how many.
func (a *AdminSessions) sweep() int {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for token, s := range a.tokens {
		if s.expired(now) {
			delete(a.tokens, token)
			n++
		}
	}
	return n
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS source is unusable
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return b
}

type adminKey struct{}

// AdminAuthMiddleware rejects requests without a valid admin cookie and
// stores the admin on the request context.
func (a *AdminSessions) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := a.FromRequest(r)
		if session == nil {
			writeError(w, "admin authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAdmin(r.Context(), session)))
	})
}

// AuthStatus is the body of the admin login and status routes.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

func statusOf(s *AdminSession) AuthStatus {
	if s == nil {
		return AuthStatus{}
	}
	return AuthStatus{Authenticated: true, Username: s.Username, ExpiresAt: s.ExpiresAt.Unix()}
}

// HandleLogin authenticates an admin and sets the session cookie
func (a *AdminSessions) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, session, err := a.Login(req.Username, req.Password)
	if err != nil {
		a.log.WithField("user", req.Username).Warn("⚠️ Admin login failed")
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}
	a.writeCookie(w, token)
	writeJSON(w, statusOf(session))
}

// HandleAuthStatus reports whether the request carries a live admin cookie.
func (a *AdminSessions) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statusOf(a.FromRequest(r)))
}

// HandleLogout forgets the token and clears the cookie.
func (a *AdminSessions) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token, err := a.tokenFrom(r); err == nil {
		a.Logout(token)
	}
	a.writeCookie(w, "")
	writeJSON(w, map[string]bool{"success": true})
}
