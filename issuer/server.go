package issuer

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quillpress/tabAuth/jwt"
	"github.com/quillpress/tabAuth/password"
)

const (
	// DefaultRenewalCookie is the cookie that carries the renewal token.
	DefaultRenewalCookie = "refresh_token"

	maxRequestBytes = 16 << 10

	detailBadCredentials = "No active account found with the given credentials"
	detailMissingCookie  = "Renewal cookie not provided"
	detailInvalidToken   = "Token is invalid or expired"
	detailBlacklisted    = "Token is blacklisted"
)

// Server handles the issuer endpoints.
type Server struct {
	tokens *jwt.Manager
	hasher *password.Hasher
	users  *UserTable
	deny   Denylist
	limit  LoginLimiter

	cookieName   string
	cookiePath   string
	secureCookie bool
	log          zerolog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithCookieName overrides [DefaultRenewalCookie].
func WithCookieName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.cookieName = name
		}
	}
}

// WithCookiePath scopes the renewal cookie. Default "/".
func WithCookiePath(path string) Option {
	return func(s *Server) {
		if path != "" {
			s.cookiePath = path
		}
	}
}

// WithSecureCookie forces the Secure attribute even on plain HTTP requests.
func WithSecureCookie(secure bool) Option {
	return func(s *Server) { s.secureCookie = secure }
}

// WithLoginLimiter throttles failed password logins. Without one, logins are
// not throttled.
func WithLoginLimiter(l LoginLimiter) Option {
	return func(s *Server) { s.limit = l }
}

// WithLogger sets the logger. Default is zerolog.Nop().
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New returns a [Server]. A nil deny defaults to a [MemoryDenylist].
func New(tokens *jwt.Manager, hasher *password.Hasher, users *UserTable, deny Denylist, opts ...Option) (*Server, error) {
	if tokens == nil || hasher == nil || users == nil {
		return nil, errors.New("issuer: token manager, hasher and user table are required")
	}
	if deny == nil {
		deny = NewMemoryDenylist(nil)
	}

	s := &Server{
		tokens:     tokens,
		hasher:     hasher,
		users:      users,
		deny:       deny,
		cookieName: DefaultRenewalCookie,
		cookiePath: "/",
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Routes returns a router with every issuer endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/token", func(r chi.Router) {
		r.Post("/", s.handleObtain)
		r.Post("/refresh/", s.handleRefresh)
		r.Post("/blacklist/", s.handleBlacklist)
		r.Post("/verify/", s.handleVerify)
	})
	r.Get("/me/", s.handleMe)
	return r
}

func (s *Server) handleObtain(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		writeDetail(w, http.StatusBadRequest, "username and password are required")
		return
	}

	ip := clientIP(r)
	if s.limit != nil {
		if err := s.limit.Allow(r.Context(), body.Username, ip); err != nil {
			if errors.Is(err, ErrThrottled) {
				s.log.Warn().Str("username", body.Username).Str("ip", ip).Msg("tabAuth: issuer login throttled")
				writeDetail(w, http.StatusTooManyRequests, "Too many failed login attempts")
				return
			}
			s.log.Error().Err(err).Msg("tabAuth: issuer login limiter failure")
			writeDetail(w, http.StatusServiceUnavailable, "Token service unavailable")
			return
		}
	}

	user, err := s.users.Lookup(body.Username)
	if err != nil {
		s.hasher.VerifyUnknown(body.Password)
		s.refuseLogin(w, r, body.Username, ip)
		return
	}

	ok, err := s.hasher.Verify(body.Password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("username", user.Username).Msg("tabAuth: issuer stored hash unusable")
	}
	if !ok || user.Disabled {
		s.refuseLogin(w, r, user.Username, ip)
		return
	}
	if s.limit != nil {
		if err := s.limit.Reset(r.Context(), user.Username); err != nil {
			s.log.Warn().Err(err).Msg("tabAuth: issuer login limiter reset failed")
		}
	}

	access, ok := s.issue(w, r, user.Username, user.IsAdmin)
	if !ok {
		return
	}
	s.log.Info().Str("username", user.Username).Msg("tabAuth: issuer login")
	writeJSON(w, http.StatusOK, map[string]any{"access": access, "is_admin": user.IsAdmin})
}

func (s *Server) refuseLogin(w http.ResponseWriter, r *http.Request, username, ip string) {
	if s.limit != nil {
		if err := s.limit.Fail(r.Context(), username, ip); err != nil {
			s.log.Warn().Err(err).Msg("tabAuth: issuer login limiter record failed")
		}
	}
	s.log.Info().Str("username", username).Msg("tabAuth: issuer login refused")
	writeDetail(w, http.StatusUnauthorized, detailBadCredentials)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.consumeRenewal(w, r)
	if !ok {
		return
	}

	// Account state may have changed since the renewal token was minted.
	user, err := s.users.Lookup(claims.Username())
	if err != nil || user.Disabled {
		s.clearRenewalCookie(w, r)
		writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}

	access, ok := s.issue(w, r, user.Username, user.IsAdmin)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (s *Server) handleBlacklist(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.consumeRenewal(w, r)
	if !ok {
		return
	}
	s.clearRenewalCookie(w, r)
	s.log.Info().Str("username", claims.Username()).Msg("tabAuth: issuer renewal revoked")
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &body); err != nil || body.Token == "" {
		writeDetail(w, http.StatusBadRequest, "token is required")
		return
	}
	if _, err := s.tokens.ParseAccess(body.Token); err != nil {
		writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided")
		return
	}
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"username": claims.Username(), "is_admin": claims.IsAdmin})
}

// consumeRenewal parses the renewal cookie and spends its jti. On failure it
// has already written the response.
func (s *Server) consumeRenewal(w http.ResponseWriter, r *http.Request) (*jwt.Claims, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		writeDetail(w, http.StatusUnauthorized, detailMissingCookie)
		return nil, false
	}

	claims, err := s.tokens.ParseRenewal(cookie.Value)
	if err != nil {
		s.clearRenewalCookie(w, r)
		writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
		return nil, false
	}

	fresh, err := s.deny.Consume(r.Context(), claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		s.log.Error().Err(err).Msg("tabAuth: issuer denylist failure")
		writeDetail(w, http.StatusServiceUnavailable, "Token service unavailable")
		return nil, false
	}
	if !fresh {
		s.log.Warn().Str("username", claims.Username()).Str("jti", claims.ID).Msg("tabAuth: issuer renewal replayed")
		s.clearRenewalCookie(w, r)
		writeDetail(w, http.StatusUnauthorized, detailBlacklisted)
		return nil, false
	}
	return claims, true
}

// issue mints an access token and sets a fresh renewal cookie.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, username string, isAdmin bool) (string, bool) {
	access, err := s.tokens.CreateAccess(username, isAdmin)
	if err != nil {
		s.log.Error().Err(err).Msg("tabAuth: issuer mint access failed")
		writeDetail(w, http.StatusInternalServerError, "Token service error")
		return "", false
	}
	renewal, claims, err := s.tokens.CreateRenewal(username, isAdmin)
	if err != nil {
		s.log.Error().Err(err).Msg("tabAuth: issuer mint renewal failed")
		writeDetail(w, http.StatusInternalServerError, "Token service error")
		return "", false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    renewal,
		Path:     s.cookiePath,
		Expires:  claims.ExpiresAt.Time,
		MaxAge:   int(s.tokens.RenewalTTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
	return access, true
}

func (s *Server) clearRenewalCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     s.cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) secure(r *http.Request) bool {
	return s.secureCookie || r.TLS != nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	return dec.Decode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
