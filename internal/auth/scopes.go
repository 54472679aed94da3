package auth

const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

// LoginScopes are requested from the OpenID Connect provider at login.
var LoginScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
}
