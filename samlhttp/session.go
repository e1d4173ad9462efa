package samlhttp

import (
	"context"
	"errors"
	"net/http"

	"github.com/markfullmer/saml"
)

// ErrNoSession is the error returned when the remote user does not
// have a session.
var ErrNoSession = errors.New("saml: session not present")

// Session is an authenticated session.
type Session interface{}

// SessionWithAttributes is a Session that can expose the attributes
// asserted about the remote user.
type SessionWithAttributes interface {
	Session
	GetAttributes() Attributes
}

// SessionProvider keeps track of sessions across requests, e.g. in an
// HTTP cookie.
type SessionProvider interface {
	// CreateSession is called when a SAML response has validated and a
	// session should be established, e.g. by setting a cookie.
	CreateSession(w http.ResponseWriter, r *http.Request, a *saml.Auth) error

	// DeleteSession modifies the response to remove the current
	// session, e.g. by deleting a cookie.
	DeleteSession(w http.ResponseWriter, r *http.Request) error

	// GetSession returns the current Session, or ErrNoSession.
	GetSession(r *http.Request) (Session, error)
}

// SessionCodec encodes and decodes Sessions.
type SessionCodec interface {
	// New creates a Session from a validated authentication.
	New(a *saml.Auth) (Session, error)

	// Encode returns a serialized version of the Session.
	Encode(s Session) (string, error)

	// Decode parses a serialized session produced by Encode.
	Decode(serialized string) (Session, error)
}

// Attributes is a map of attributes asserted about the remote user.
type Attributes map[string][]string

// Get returns the first attribute named key or an empty string if no
// such attribute is present.
func (a Attributes) Get(key string) string {
	if a == nil {
		return ""
	}
	v := a[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

type indexType int

const sessionIndexKey indexType = 0

func contextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionIndexKey, session)
}

// SessionFromContext returns the session associated with the request
// by RequireAccount, or nil.
func SessionFromContext(r *http.Request) Session {
	s, _ := r.Context().Value(sessionIndexKey).(Session)
	return s
}

// AttributeFromContext is a convenience accessor over
// SessionFromContext for sessions that carry attributes.
func AttributeFromContext(r *http.Request, name string) string {
	s, ok := SessionFromContext(r).(SessionWithAttributes)
	if !ok {
		return ""
	}
	return s.GetAttributes().Get(name)
}
