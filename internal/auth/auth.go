package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"

	"prompt-chaining/backend/internal/config"
	"prompt-chaining/backend/internal/repository"
	"prompt-chaining/backend/pkg/models"
)

const (
	cookieIDToken = "id_token"
	cookieState   = "oauthstate"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth authenticates requests with locally issued access tokens and, when
// an issuer is configured, OpenID Connect tokens.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	tokens       *TokenIssuer
	users        repository.UserStore
	logger       Logger
	roleClaim    string
	devMode      bool
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. When an OIDC issuer is configured it connects to the
// provider and prepares the ID and access token verifiers.
func New(ctx context.Context, cfg *config.Config, tokens *TokenIssuer, users repository.UserStore, logger Logger) (*Auth, error) {
	a := &Auth{
		tokens:     tokens,
		users:      users,
		logger:     logger,
		roleClaim:  cfg.Auth.RoleClaim,
		devMode:    cfg.IsDev(),
		authBypass: cfg.IsDev() && cfg.DevModeBypass,
	}
	if a.roleClaim == "" {
		a.roleClaim = "role"
	}

	if a.authBypass {
		logger.Info("authentication bypass enabled")
		return a, nil
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if !cfg.OIDCEnabled() {
		return a, nil
	}
	if cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
		return nil, errors.New("auth configuration is incomplete")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
	if err != nil {
		return nil, err
	}

	a.oauth2Config = &oauth2.Config{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  cfg.Auth.RedirectURL,
		Scopes:       LoginScopes,
	}
	a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})
	// Access tokens usually carry a different audience than the client id.
	a.apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})

	return a, nil
}

// OIDCEnabled reports whether the login, callback and logout handlers are
// usable.
func (a *Auth) OIDCEnabled() bool {
	return a.oauth2Config != nil
}

// LoginHandler initiates the OAuth2 authorization code flow by redirecting the
// user to the provider's authorization endpoint. A random state value is
// stored in a cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if !a.OIDCEnabled() {
		http.Error(w, "single sign-on is not configured", http.StatusNotFound)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieState,
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Secure:   !a.devMode,
	})

	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler handles the redirect back from the provider. It verifies
// the state parameter, exchanges the code for tokens, validates the ID token,
// and sets a session cookie containing the raw ID token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if !a.OIDCEnabled() {
		http.Error(w, "single sign-on is not configured", http.StatusNotFound)
		return
	}

	cookie, err := r.Cookie(cookieState)
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.logger.Error("token exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}

	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieIDToken,
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Secure:   !a.devMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   cookieIDToken,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireAuth is middleware that resolves the caller and stores it in the
// request context. It accepts a bearer access token issued by TokenIssuer,
// a bearer token from the OIDC provider, or the ID token session cookie.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authBypass {
			ctx := WithPrincipal(r.Context(), &Principal{
				UserID: "dev",
				Email:  "dev@localhost",
				Role:   models.RoleAdmin,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		var (
			principal *Principal
			err       error
		)
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			principal, err = a.fromBearer(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		} else if cookie, cerr := r.Cookie(cookieIDToken); cerr == nil && a.verifier != nil {
			principal, err = a.fromIDToken(r.Context(), a.verifier, cookie.Value)
		} else {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				http.Error(w, "user not found", http.StatusUnauthorized)
				return
			}
			if errors.Is(err, ErrInvalidToken) {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			a.logger.Error("failed to resolve principal", "error", err)
			http.Error(w, "failed to authenticate", http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole returns middleware that rejects callers without one of roles.
// It must run after RequireAuth.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !p.HasRole(roles...) {
				http.Error(w, "insufficient role", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Auth) fromBearer(ctx context.Context, raw string) (*Principal, error) {
	if a.tokens != nil {
		claims, err := a.tokens.Verify(raw)
		if err == nil {
			user, err := a.users.GetUserByID(ctx, claims.UserID)
			if err != nil {
				return nil, err
			}
			return principalOf(user), nil
		}
	}
	if a.apiVerifier == nil {
		return nil, ErrInvalidToken
	}
	return a.fromIDToken(ctx, a.apiVerifier, raw)
}

// fromIDToken verifies an OIDC token. Callers with a local account get the
// account's role; others get the role named by the configured claim.
func (a *Auth) fromIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, raw string) (*Principal, error) {
	token, err := verifier.Verify(ctx, raw)
	if err != nil {
		a.logger.Debug("oidc token rejected", "error", err)
		return nil, ErrInvalidToken
	}

	var claims map[string]any
	if err := token.Claims(&claims); err != nil {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, ErrInvalidToken
	}

	user, err := a.users.GetUserByEmail(ctx, strings.ToLower(email))
	switch {
	case err == nil:
		return principalOf(user), nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	given, _ := claims["given_name"].(string)
	family, _ := claims["family_name"].(string)
	return &Principal{
		UserID:    token.Subject,
		Email:     strings.ToLower(email),
		FirstName: given,
		LastName:  family,
		Role:      roleFromClaim(claims[a.roleClaim]),
	}, nil
}

// roleFromClaim accepts a single role or a list of groups. Any ADMIN entry
// wins; everything else maps to USER.
func roleFromClaim(v any) models.Role {
	var values []string
	switch c := v.(type) {
	case string:
		values = []string{c}
	case []any:
		for _, item := range c {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
	}
	for _, s := range values {
		if role, ok := models.ParseRole(s); ok && role == models.RoleAdmin {
			return models.RoleAdmin
		}
	}
	return models.RoleUser
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
