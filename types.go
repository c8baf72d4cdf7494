package tabAuth

// Identity is the advisory profile returned by the issuer at login. It never
// gates access; the server re-authorizes every request.
type Identity struct {
	Username string
	IsAdmin  bool
}

// Session is an immutable snapshot of one tab's authentication state.
//
// Authenticated is true exactly when AccessToken is non-empty. Epoch increases
// on every login, hydration and logout, and is diagnostic only.
type Session struct {
	AccessToken   string
	Identity      *Identity
	Authenticated bool
	Epoch         uint64
}

// Username returns the identity username or "".
func (s Session) Username() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Username
}

// IsAdmin reports the advisory admin flag.
func (s Session) IsAdmin() bool {
	return s.Identity != nil && s.Identity.IsAdmin
}

func newSession(token string, id *Identity, epoch uint64) *Session {
	s := &Session{AccessToken: token, Authenticated: token != "", Epoch: epoch}
	if s.Authenticated && id != nil {
		cp := *id
		s.Identity = &cp
	}
	return s
}

// clone returns a copy whose Identity does not alias the published snapshot.
func (s *Session) clone() Session {
	out := *s
	if s.Identity != nil {
		cp := *s.Identity
		out.Identity = &cp
	}
	return out
}
