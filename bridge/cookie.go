package bridge

import (
	"net/http"
	"time"
)

const (
	// DefaultCookieName is the marker name the edge guard looks for.
	DefaultCookieName = "accessToken"
	// DefaultMaxAge bounds the marker lifetime.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// CookieOptions defines how the marker cookie is issued.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// normalize applies defaults without breaking callers.
func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = DefaultCookieName
	}
	if o.Path == "" {
		o.Path = "/"
	}
	if o.MaxAge <= 0 {
		o.MaxAge = DefaultMaxAge
	}
	if o.SameSite == 0 || o.SameSite == http.SameSiteDefaultMode {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

func (o CookieOptions) marker(token string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    token,
		Path:     o.Path,
		Domain:   o.Domain,
		Expires:  now.Add(o.MaxAge),
		MaxAge:   int(o.MaxAge / time.Second),
		Secure:   o.Secure,
		SameSite: o.SameSite,
	}
}

func (o CookieOptions) expired() *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    "",
		Path:     o.Path,
		Domain:   o.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   o.Secure,
		SameSite: o.SameSite,
	}
}

// Marker returns the marker value carried by r, if any. An empty cookie value
// counts as absent.
func Marker(r *http.Request, name string) (string, bool) {
	if r == nil {
		return "", false
	}
	if name == "" {
		name = DefaultCookieName
	}
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
