// Package transport attaches the tab's access token to outgoing API requests.
package transport

import (
	"errors"
	"net/http"

	tabAuth "github.com/quillpress/tabAuth"
)

// ErrNoSession is returned by a Required [Bearer] when the tab is logged out.
var ErrNoSession = errors.New("transport: no active session")

// SessionSource yields the current session; *tabAuth.Manager implements it.
type SessionSource interface {
	GetSession() tabAuth.Session
}

// Bearer is an http.RoundTripper that sets "Authorization: Bearer <token>"
// from the current session. Requests that already carry an Authorization
// header are left alone.
type Bearer struct {
	Source SessionSource
	Base   http.RoundTripper
	// Required fails requests made while logged out instead of sending them
	// anonymously.
	Required bool
}

func (b *Bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	base := b.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Header.Get("Authorization") != "" || b.Source == nil {
		return base.RoundTrip(req)
	}

	s := b.Source.GetSession()
	if !s.Authenticated {
		if b.Required {
			if req.Body != nil {
				_ = req.Body.Close()
			}
			return nil, ErrNoSession
		}
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+s.AccessToken)
	return base.RoundTrip(out)
}

// Client returns an http.Client sending requests through a [Bearer] over base.
func Client(src SessionSource, base *http.Client) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.Transport = &Bearer{Source: src, Base: c.Transport}
	return c
}
