package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm tokens are signed with.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// TokenType is the value of the token_type claim.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRenewal TokenType = "refresh"
)

const minHMACSecret = 32

var (
	// ErrWrongTokenType is returned when a token of the other type is parsed.
	ErrWrongTokenType = errors.New("jwt: wrong token type")
	// ErrMissingSubject is returned when a token has no username.
	ErrMissingSubject = errors.New("jwt: missing subject")
)

// Config configures a [Manager].
type Config struct {
	AccessTTL     time.Duration
	RenewalTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
	KeyID         string

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the payload of both token types.
type Claims struct {
	TokenType TokenType `json:"token_type"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// Username returns the subject claim.
func (c *Claims) Username() string { return c.Subject }

// Manager signs and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access ttl must be > 0")
	}
	if cfg.RenewalTTL <= 0 {
		return nil, errors.New("jwt: renewal ttl must be > 0")
	}
	if cfg.RenewalTTL <= cfg.AccessTTL {
		return nil, errors.New("jwt: renewal ttl must be > access ttl")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("jwt: leeway must be >= 0")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodEd25519
	}

	switch cfg.SigningMethod {
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("jwt: ed25519 public key required")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: ed25519 private key required")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACSecret {
			return nil, fmt.Errorf("jwt: hs256 secret must be at least %d bytes", minHMACSecret)
		}
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)

	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RenewalTTL returns the configured renewal token lifetime.
func (j *Manager) RenewalTTL() time.Duration { return j.config.RenewalTTL }

// CreateAccess mints an access token for username.
func (j *Manager) CreateAccess(username string, isAdmin bool) (string, error) {
	token, _, err := j.create(TokenAccess, username, isAdmin, j.config.AccessTTL)
	return token, err
}

// CreateRenewal mints a renewal token and returns it along with its claims
// so the caller can record the jti and expiry.
func (j *Manager) CreateRenewal(username string, isAdmin bool) (string, *Claims, error) {
	return j.create(TokenRenewal, username, isAdmin, j.config.RenewalTTL)
}

func (j *Manager) create(typ TokenType, username string, isAdmin bool, ttl time.Duration) (string, *Claims, error) {
	if strings.TrimSpace(username) == "" {
		return "", nil, ErrMissingSubject
	}

	now := j.config.Now()
	claims := &Claims{
		TokenType: typ,
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccess verifies an access token.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, TokenAccess)
}

// ParseRenewal verifies a renewal token. The caller still has to check the
// jti against its denylist.
func (j *Manager) ParseRenewal(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, TokenRenewal)
}

func (j *Manager) parse(tokenStr string, want TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != j.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if j.config.KeyID != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != j.config.KeyID {
				return nil, errors.New("unknown kid")
			}
		}
		return j.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if claims.ID == "" {
		return nil, jwt.ErrTokenInvalidId
	}

	return claims, nil
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
