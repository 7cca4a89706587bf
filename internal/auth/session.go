package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"docshare/pkg/logger"
	"docshare/pkg/metrics"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"
	VerifierCookie     = "sb-code-verifier"

	refreshTokenTTL = 30 * 24 * time.Hour
	verifierTTL     = 15 * time.Minute
)

var (
	ErrNoSession       = errors.New("not signed in")
	ErrEmptyEmail      = errors.New("email cannot be empty")
	ErrRateLimited     = errors.New("a magic link was sent recently, check your inbox or try again shortly")
	ErrMissingVerifier = errors.New("sign-in must be completed in the browser that requested the link")
)

type Event string

const (
	SignedIn       Event = "SIGNED_IN"
	SignedOut      Event = "SIGNED_OUT"
	TokenRefreshed Event = "TOKEN_REFRESHED"
)

type StateChange struct {
	Event Event
	User  User
}

type Listener func(StateChange)

// GoTrue is the part of the auth server the session manager needs.
type GoTrue interface {
	SendMagicLink(ctx context.Context, email, redirectTo, challenge string) error
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, accessToken string) error
}

// SessionManager owns the browser session: it keeps the Supabase tokens in
// cookies, refreshes an expired access token once per request, and tells
// subscribers when someone signs in, out, or gets a fresh token.
type SessionManager struct {
	client   GoTrue
	verifier *Verifier
	limiter  *EmailLimiter
	callback string
	secure   bool

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int

	// Concurrent refreshes of one refresh token share a single upstream call.
	refreshes singleflight.Group
}

func NewSessionManager(client GoTrue, verifier *Verifier, limiter *EmailLimiter, siteURL string, secure bool) *SessionManager {
	return &SessionManager{
		client:    client,
		verifier:  verifier,
		limiter:   limiter,
		callback:  strings.TrimRight(siteURL, "/") + "/auth/callback",
		secure:    secure,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn for auth-state changes. The returned func removes it.
func (m *SessionManager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *SessionManager) emit(ev Event, u User) {
	m.mu.RLock()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(StateChange{Event: ev, User: u})
	}
}

// SendMagicLink emails a sign-in link. The PKCE verifier stays in a cookie
// on this browser, so the link only completes sign-in here.
func (m *SessionManager) SendMagicLink(ctx context.Context, w http.ResponseWriter, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyEmail
	}
	if m.limiter != nil && !m.limiter.Allow(email) {
		metrics.MagicLinks.WithLabelValues("rate_limited").Inc()
		return ErrRateLimited
	}

	verifier := oauth2.GenerateVerifier()
	if err := m.client.SendMagicLink(ctx, email, m.callback, oauth2.S256ChallengeFromVerifier(verifier)); err != nil {
		metrics.MagicLinks.WithLabelValues("error").Inc()
		logger.Sugar.Errorf("Failed to send magic link: %v", err)
		return err
	}

	m.setCookie(w, VerifierCookie, verifier, verifierTTL)
	metrics.MagicLinks.WithLabelValues("sent").Inc()
	return nil
}

// CompleteSignIn exchanges the code from the magic link for a session and
// stores it in cookies.
func (m *SessionManager) CompleteSignIn(ctx context.Context, w http.ResponseWriter, r *http.Request, code string) (*User, error) {
	c, err := r.Cookie(VerifierCookie)
	if err != nil || c.Value == "" {
		return nil, ErrMissingVerifier
	}

	s, err := m.client.ExchangeCode(ctx, code, c.Value)
	if err != nil {
		return nil, err
	}
	m.clearCookie(w, VerifierCookie)

	user, err := m.store(w, s)
	if err != nil {
		return nil, err
	}
	logger.Sugar.Infof("User %s signed in", user.ID)
	m.emit(SignedIn, *user)
	return user, nil
}

// Current returns the signed-in user of the request. An expired access
// token is refreshed once; any other failure is ErrNoSession.
func (m *SessionManager) Current(ctx context.Context, w http.ResponseWriter, r *http.Request) (*User, error) {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		user, err := m.verifier.Verify(c.Value)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, ErrTokenExpired) {
			return nil, ErrNoSession
		}
	}

	rc, err := r.Cookie(RefreshTokenCookie)
	if err != nil || rc.Value == "" {
		return nil, ErrNoSession
	}

	v, err, _ := m.refreshes.Do(rc.Value, func() (any, error) {
		s, err := m.client.Refresh(context.WithoutCancel(ctx), rc.Value)
		if err != nil {
			return nil, err
		}
		user, err := m.sessionUser(s)
		if err != nil {
			return nil, err
		}
		m.emit(TokenRefreshed, *user)
		return s, nil
	})
	if err != nil {
		logger.Sugar.Warnf("Session refresh failed: %v", err)
		m.clearSession(w)
		return nil, ErrNoSession
	}

	user, err := m.store(w, v.(*Session))
	if err != nil {
		m.clearSession(w)
		return nil, ErrNoSession
	}
	return user, nil
}

// Authenticate validates a bearer token from an API client.
func (m *SessionManager) Authenticate(token string) (*User, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	return m.verifier.Verify(token)
}

// SignOut revokes the session upstream and clears the cookies. The cookies
// are cleared even when the upstream call fails.
func (m *SessionManager) SignOut(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	c, err := r.Cookie(AccessTokenCookie)
	if err != nil || c.Value == "" {
		m.clearSession(w)
		return nil
	}

	user, verr := m.verifier.Identify(c.Value)
	err = m.client.Logout(ctx, c.Value)
	m.clearSession(w)
	if err != nil {
		logger.Sugar.Warnf("Upstream logout failed: %v", err)
	}

	if verr == nil {
		logger.Sugar.Infof("User %s signed out", user.ID)
		m.emit(SignedOut, *user)
	}
	return err
}

func (m *SessionManager) sessionUser(s *Session) (*User, error) {
	user, err := m.verifier.Verify(s.AccessToken)
	if err != nil {
		return nil, err
	}
	if user.Email == "" {
		user.Email = s.User.Email
	}
	return user, nil
}

func (m *SessionManager) store(w http.ResponseWriter, s *Session) (*User, error) {
	user, err := m.sessionUser(s)
	if err != nil {
		return nil, err
	}

	// The access cookie outlives the token so an expired token can still be
	// recognised and refreshed.
	m.setCookie(w, AccessTokenCookie, s.AccessToken, refreshTokenTTL)
	m.setCookie(w, RefreshTokenCookie, s.RefreshToken, refreshTokenTTL)
	return user, nil
}

func (m *SessionManager) clearSession(w http.ResponseWriter) {
	m.clearCookie(w, AccessTokenCookie)
	m.clearCookie(w, RefreshTokenCookie)
}

func (m *SessionManager) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *SessionManager) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
