package tokenstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnavailable is returned when the storage backend cannot serve a request.
var ErrUnavailable = errors.New("token store unavailable")

// Record is the persisted form of a session.
type Record struct {
	AccessToken string
	Username    string
	IsAdmin     bool
}

// Store persists one [Record] per tab.
//
// Write replaces all fields at once: a Read that follows a Write never observes a
// mix of old and new fields. Clear is idempotent. Read reports found=false when
// nothing was written or the record was cleared.
type Store interface {
	Write(ctx context.Context, rec Record) error
	Read(ctx context.Context) (Record, bool, error)
	Clear(ctx context.Context) error
}

// NewTabID returns a fresh browsing-context identifier used to scope stored keys.
func NewTabID() string {
	return uuid.NewString()
}

// ValidTabID reports whether id is a canonical UUID as produced by [NewTabID].
func ValidTabID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
