// Package auth provides Google sign-in and the signed session cookie that
// identifies a user and their chat session.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"resty.dev/v3"

	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/observability"
)

const (
	SessionCookieName = "l3v_session"
	stateCookieName   = "l3v_oauth_state"

	// DevEmail identifies the user when sign-in is disabled.
	DevEmail = "dev@localhost"

	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
	cookieMaxAge     = 7 * 24 * time.Hour
)

// Identity is the signed-in user bound to a request.
type Identity struct {
	Email       string
	SessionID   string
	AccessToken string
}

// Options configures the Authenticator.
type Options struct {
	Enabled        bool
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	HashKey        string
	BlockKey       string
	AllowedDomains []string
	SecureCookies  bool

	// Endpoint defaults to Google's OAuth2 endpoint.
	Endpoint  oauth2.Endpoint
	RevokeURL string
	Logger    *observability.Logger
}

// Authenticator handles the OAuth2 login flow and guards routes.
type Authenticator struct {
	enabled   bool
	oauth     *oauth2.Config
	cookies   *securecookie.SecureCookie
	allowed   map[string]bool
	secure    bool
	revoke    *resty.Client
	revokeURL string
	logger    *observability.Logger
}

// New creates an Authenticator. With sign-in disabled every request gets
// the DevEmail identity and an anonymous session cookie.
func New(opts Options) (*Authenticator, error) {
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}
	if opts.Endpoint.TokenURL == "" {
		opts.Endpoint = google.Endpoint
	}
	if opts.RevokeURL == "" {
		opts.RevokeURL = defaultRevokeURL
	}

	hashKey := []byte(opts.HashKey)
	if len(hashKey) == 0 {
		if opts.Enabled {
			return nil, domain.ConfigError("cookie hash key is required when sign-in is enabled", nil)
		}
		hashKey = securecookie.GenerateRandomKey(32)
	}

	// The session cookie carries the access token, so it is always encrypted.
	blockKey := []byte(opts.BlockKey)
	if len(blockKey) == 0 {
		if opts.Enabled {
			return nil, domain.ConfigError("cookie block key is required when sign-in is enabled", nil)
		}
		blockKey = securecookie.GenerateRandomKey(32)
	}
	switch len(blockKey) {
	case 16, 24, 32:
	default:
		return nil, domain.ConfigError("cookie block key must be 16, 24 or 32 bytes", nil)
	}

	cookies := securecookie.New(hashKey, blockKey)
	cookies.MaxAge(int(cookieMaxAge.Seconds()))

	allowed := make(map[string]bool, len(opts.AllowedDomains))
	for _, d := range opts.AllowedDomains {
		allowed[strings.ToLower(strings.TrimSpace(d))] = true
	}

	return &Authenticator{
		enabled: opts.Enabled,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     opts.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		cookies:   cookies,
		allowed:   allowed,
		secure:    opts.SecureCookies,
		revoke:    resty.New().SetTimeout(10 * time.Second),
		revokeURL: opts.RevokeURL,
		logger:    opts.Logger.WithOperation("auth"),
	}, nil
}

// Enabled reports whether Google sign-in is required.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Close releases the revocation client.
func (a *Authenticator) Close() error {
	return a.revoke.Close()
}

// LoginHandler starts the OAuth2 flow.
func (a *Authenticator) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !a.enabled {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	state, err := generateState()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to create oauth state")
		http.Error(w, "Failed to start sign-in.", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})

	// Online access only; no refresh token is needed.
	http.Redirect(w, r, a.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

// CallbackHandler completes the OAuth2 flow and sets the session cookie.
func (a *Authenticator) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	logger := a.logger.WithContext(r.Context())

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.FormValue("state") {
		logger.Warn().Msg("oauth state mismatch")
		http.Error(w, "Session state doesn't match callback state.", http.StatusBadRequest)
		return
	}
	a.clearCookie(w, stateCookieName)

	if errParam := r.FormValue("error"); errParam != "" {
		logger.Warn().Str("error", errParam).Msg("sign-in was declined")
		http.Error(w, "Sign-in was cancelled.", http.StatusUnauthorized)
		return
	}

	token, err := a.oauth.Exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		logger.Error().Err(err).Msg("failed to exchange oauth code")
		http.Error(w, "Failed to authenticate.", http.StatusUnauthorized)
		return
	}

	idToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "No id_token returned.", http.StatusUnauthorized)
		return
	}

	email, err := EmailFromIDToken(idToken)
	if err != nil {
		logger.Error().Err(err).Msg("invalid id_token")
		http.Error(w, "Invalid id_token.", http.StatusUnauthorized)
		return
	}

	if !a.isAuthorized(email) {
		logger.Warn().Str("email", email).Msg("email domain not allowed")
		http.Error(w, "Accounts from your domain are not allowed.", http.StatusForbidden)
		return
	}

	id := &Identity{
		Email:       email,
		SessionID:   uuid.NewString(),
		AccessToken: token.AccessToken,
	}
	if err := a.setSession(w, id); err != nil {
		logger.Error().Err(err).Msg("failed to encode session cookie")
		http.Error(w, "Failed to create session.", http.StatusInternalServerError)
		return
	}

	logger.Info().Str("email", email).Msg("user signed in")
	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout clears the session cookie and revokes the access token. It returns
// the identity that was signed in, if any. Revocation is best effort.
func (a *Authenticator) Logout(w http.ResponseWriter, r *http.Request) *Identity {
	id, _ := a.readSession(r)
	a.clearCookie(w, SessionCookieName)

	if id != nil && id.AccessToken != "" {
		if err := a.revokeToken(r.Context(), id.AccessToken); err != nil {
			a.logger.WithContext(r.Context()).Warn().Err(err).Msg("token revocation failed")
		}
	}
	return id
}

// Middleware binds an Identity to every request. Unauthenticated API
// requests get 401; page requests are redirected to /login.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.readSession(r)

		if !a.enabled && (err != nil || id.Email != DevEmail) {
			id = &Identity{Email: DevEmail, SessionID: uuid.NewString()}
			if err := a.setSession(w, id); err != nil {
				http.Error(w, "Failed to create session.", http.StatusInternalServerError)
				return
			}
			err = nil
		}

		if err != nil {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// EmailFromIDToken reads the email claim of a Google id_token. The signature
// is not checked: the token was received directly from Google over TLS.
func EmailFromIDToken(idToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("parse id_token: %w", err)
	}

	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if strings.Count(email, "@") != 1 {
		return "", fmt.Errorf("invalid email claim %q", email)
	}

	if verified, ok := claims["email_verified"].(bool); ok && !verified {
		return "", fmt.Errorf("email %s is not verified", email)
	}

	return email, nil
}

func (a *Authenticator) isAuthorized(email string) bool {
	if len(a.allowed) == 0 {
		return true
	}
	return a.allowed[email[strings.LastIndex(email, "@")+1:]]
}

func (a *Authenticator) setSession(w http.ResponseWriter, id *Identity) error {
	encoded, err := a.cookies.Encode(SessionCookieName, id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cookieMaxAge.Seconds()),
	})
	return nil
}

func (a *Authenticator) readSession(r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, err
	}
	var id Identity
	if err := a.cookies.Decode(SessionCookieName, cookie.Value, &id); err != nil {
		return nil, err
	}
	if id.Email == "" || id.SessionID == "" {
		return nil, fmt.Errorf("incomplete session cookie")
	}
	return &id, nil
}

func (a *Authenticator) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		MaxAge:   -1,
	})
}

func (a *Authenticator) revokeToken(ctx context.Context, token string) error {
	resp, err := a.revoke.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token}).
		Post(a.revokeURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode())
	}
	return nil
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

type contextKey struct{}

// WithIdentity attaches the identity to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity bound by Middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(*Identity)
	return id, ok && id != nil
}
