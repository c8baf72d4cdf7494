package tabAuth

import "errors"

var (
	// ErrTokenRequired is returned by Login for an empty access token.
	ErrTokenRequired = errors.New("access token required")
	// ErrIdentityRequired is returned by Login for an empty username.
	ErrIdentityRequired = errors.New("identity username required")
	// ErrManagerClosed is returned by mutations after Close.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrInvalidCredentials is returned by LoginWithPassword when the issuer
	// refuses the username and password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialsRequired is returned by LoginWithPassword for a blank
	// username or password.
	ErrCredentialsRequired = errors.New("username and password required")
	// ErrCredentialExchangeUnavailable is returned by LoginWithPassword when no
	// exchanger is configured or the issuer cannot be reached.
	ErrCredentialExchangeUnavailable = errors.New("credential exchange unavailable")
	// ErrMalformedGrant is returned by LoginWithPassword when the issuer's reply
	// carries no usable token.
	ErrMalformedGrant = errors.New("malformed credential grant")
	// ErrRefreshFailed wraps the cause of a forced logout in events and hooks.
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrStaleRefresh is reported when a renewal result arrives for a session
	// that no longer exists.
	ErrStaleRefresh = errors.New("stale refresh result discarded")
	// ErrRefresherRequired is returned by Build when neither a refresher nor a
	// token API is configured.
	ErrRefresherRequired = errors.New("refresher required")
	// ErrBuilderUsed is returned by a second Build call.
	ErrBuilderUsed = errors.New("builder already used")
)
