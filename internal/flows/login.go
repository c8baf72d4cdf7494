package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/quillpress/tabAuth/tokenapi"
)

// LoginFailureKind classifies password login failures.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidInput
	LoginFailureRejected
	LoginFailureMalformed
	LoginFailureTransport
	LoginFailureUnavailable
)

// CredentialExchanger trades a username and password for an access grant.
type CredentialExchanger interface {
	Obtain(ctx context.Context, username, password string) (tokenapi.Grant, error)
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Exchanger   CredentialExchanger
	IsMalformed func(error) bool
	IsRejected  func(error) bool
}

// LoginResult is the exchange outcome. Username is the trimmed input.
type LoginResult struct {
	Failure     LoginFailureKind
	Err         error
	AccessToken string
	Username    string
	IsAdmin     bool
}

// RunPasswordLogin performs the credential exchange. It does not touch session
// state; the caller logs in with the returned token.
func RunPasswordLogin(ctx context.Context, username, password string, deps LoginDeps) LoginResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidInput, Err: errors.New("flows: username and password required")}
	}
	if deps.Exchanger == nil {
		return LoginResult{Failure: LoginFailureUnavailable, Err: errors.New("flows: no credential exchanger configured"), Username: username}
	}

	grant, err := deps.Exchanger.Obtain(ctx, username, password)
	if err != nil {
		kind := LoginFailureTransport
		switch {
		case deps.IsMalformed != nil && deps.IsMalformed(err):
			kind = LoginFailureMalformed
		case deps.IsRejected != nil && deps.IsRejected(err):
			kind = LoginFailureRejected
		}
		return LoginResult{Failure: kind, Err: err, Username: username}
	}
	if grant.Access == "" {
		return LoginResult{Failure: LoginFailureMalformed, Err: errors.New("flows: empty access token"), Username: username}
	}

	return LoginResult{
		AccessToken: grant.Access,
		Username:    username,
		IsAdmin:     grant.IsAdmin,
	}
}
