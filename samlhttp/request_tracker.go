package samlhttp

import (
	"errors"
	"net/http"
	"time"

	"github.com/dchest/uniuri"
)

// ErrTrackedRequestNotFound is the error returned when a tracked
// outstanding authentication request cannot be located.
var ErrTrackedRequestNotFound = errors.New("saml: tracked request not present")

// TrackedRequest is an authentication request we have issued and not
// yet seen answered.
type TrackedRequest struct {
	Index         string `json:"-"`
	SAMLRequestID string `json:"id"`
	URI           string `json:"uri"`
}

// RequestTracker tracks pending authentication requests so that
// responses can be correlated via InResponseTo.
type RequestTracker interface {
	// TrackRequest starts tracking samlRequestID for the request r,
	// which is about to be redirected into the auth flow. It returns an
	// opaque index suitable for use as RelayState.
	TrackRequest(w http.ResponseWriter, r *http.Request, samlRequestID string) (string, error)

	// StopTrackingRequest drops the tracked request named by index.
	StopTrackingRequest(w http.ResponseWriter, r *http.Request, index string) error

	// GetTrackedRequest returns the tracked request named by index, or
	// ErrTrackedRequestNotFound.
	GetTrackedRequest(r *http.Request, index string) (*TrackedRequest, error)
}

// TrackedRequestCodec encodes and decodes tracked requests.
type TrackedRequestCodec interface {
	Encode(value TrackedRequest) (string, error)
	Decode(signed string) (*TrackedRequest, error)
}

var _ RequestTracker = CookieRequestTracker{}

// CookieRequestTracker tracks requests by setting a signed cookie per
// pending authentication request. RelayState is limited to 80 bytes,
// so the cookie name carries only a short random index and the signed
// payload lives in the cookie value.
type CookieRequestTracker struct {
	Codec      TrackedRequestCodec
	NamePrefix string
	Path       string
	MaxAge     time.Duration
	SameSite   http.SameSite
}

// TrackRequest starts tracking samlRequestID.
func (t CookieRequestTracker) TrackRequest(w http.ResponseWriter, r *http.Request, samlRequestID string) (string, error) {
	trackedRequest := TrackedRequest{
		Index:         uniuri.New(),
		SAMLRequestID: samlRequestID,
		URI:           r.URL.String(),
	}
	signed, err := t.Codec.Encode(trackedRequest)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     t.NamePrefix + trackedRequest.Index,
		Value:    signed,
		MaxAge:   int(t.MaxAge.Seconds()),
		HttpOnly: true,
		SameSite: t.SameSite,
		Secure:   r.URL.Scheme == "https",
		Path:     t.Path,
	})

	return trackedRequest.Index, nil
}

// StopTrackingRequest drops the tracked request named by index.
func (t CookieRequestTracker) StopTrackingRequest(w http.ResponseWriter, r *http.Request, index string) error {
	cookie, err := r.Cookie(t.NamePrefix + index)
	if err != nil {
		return err
	}
	cookie.Value = ""
	cookie.Domain = ""
	cookie.Expires = time.Unix(1, 0) // past time as close to epoch as possible, but not zero time.Time{}
	http.SetCookie(w, cookie)
	return nil
}

// GetTrackedRequest returns the tracked request named by index.
func (t CookieRequestTracker) GetTrackedRequest(r *http.Request, index string) (*TrackedRequest, error) {
	cookie, err := r.Cookie(t.NamePrefix + index)
	if err == http.ErrNoCookie {
		return nil, ErrTrackedRequestNotFound
	} else if err != nil {
		return nil, err
	}

	trackedRequest, err := t.Codec.Decode(cookie.Value)
	if err != nil {
		return nil, err
	}
	trackedRequest.Index = index
	return trackedRequest, nil
}
