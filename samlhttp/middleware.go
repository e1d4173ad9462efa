package samlhttp

import (
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"

	"github.com/markfullmer/saml"
)

// Middleware implements the HTTP surface of a SAML service provider.
//
// It implements http.Handler so that it can serve the assertion
// consumer and single logout endpoints, typically /saml/acs and
// /saml/slo. It also provides RequireAccount, middleware that starts
// the auth flow for requests without a session.
type Middleware struct {
	Settings       *saml.Settings
	Session        SessionProvider
	RequestTracker RequestTracker

	// Binding used for outgoing AuthnRequest messages. Empty means the
	// identity provider's SSO binding from the settings.
	Binding string

	// DefaultRedirectURI is where the browser lands after an
	// IdP-initiated response, which carries no tracked request.
	DefaultRedirectURI string

	// OnError is invoked when a SAML message fails to validate.
	// Defaults to a handler that logs the failure and responds 403.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// ServeHTTP serves the assertion consumer and single logout endpoints.
func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	acsURL, _ := url.Parse(m.Settings.SP.AssertionConsumerServiceURL)
	if r.URL.Path == acsURL.Path {
		m.ServeACS(w, r)
		return
	}
	if m.Settings.SP.SingleLogoutServiceURL != "" {
		sloURL, _ := url.Parse(m.Settings.SP.SingleLogoutServiceURL)
		if r.URL.Path == sloURL.Path {
			m.ServeSLO(w, r)
			return
		}
	}
	http.NotFoundHandler().ServeHTTP(w, r)
}

// RequireAccount is HTTP middleware that requires each request to be
// associated with a valid session. Requests without one are redirected
// into the SAML auth flow instead of being served.
func (m *Middleware) RequireAccount(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := m.Session.GetSession(r)
		if session != nil {
			r = r.WithContext(contextWithSession(r.Context(), session))
			handler.ServeHTTP(w, r)
			return
		}
		if err == ErrNoSession {
			m.HandleStartAuthFlow(w, r)
			return
		}
		m.onError(w, r, err)
	})
}

// HandleStartAuthFlow redirects the browser to the identity provider
// to begin authentication, tracking the request so the response can be
// correlated.
func (m *Middleware) HandleStartAuthFlow(w http.ResponseWriter, r *http.Request) {
	// If we try to redirect when the original request is the ACS URL
	// we'll end up in a loop. This is a programming error, so we panic
	// here. In general this means a 500 to the user, which is
	// preferable to a redirect loop.
	acsURL, _ := url.Parse(m.Settings.SP.AssertionConsumerServiceURL)
	if r.URL.Path == acsURL.Path {
		panic("don't wrap Middleware with RequireAccount")
	}

	req := m.Settings.MakeAuthnRequest(saml.AuthnRequestParams{})
	relayState, err := m.RequestTracker.TrackRequest(w, r, req.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	binding := m.Binding
	if binding == "" {
		binding = m.Settings.IdP.SingleSignOnServiceBinding
	}
	switch binding {
	case saml.HTTPRedirectBinding:
		redirectURL, err := m.Settings.AuthnRequestRedirectURL(req, relayState)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, redirectURL, http.StatusFound)
	case saml.HTTPPostBinding:
		form, err := m.Settings.AuthnRequestPost(req, relayState)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Add("Content-type", "text/html")
		if _, err := w.Write([]byte("<!DOCTYPE html><html><body>")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := w.Write(form); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := w.Write([]byte("</body></html>")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "unsupported binding", http.StatusInternalServerError)
	}
}

// ServeACS consumes a Response delivered to the assertion consumer
// service, establishes the session and sends the browser back where it
// started.
func (m *Middleware) ServeACS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		m.onError(w, r, err)
		return
	}

	redirectURI := m.DefaultRedirectURI
	if redirectURI == "" {
		redirectURI = "/"
	}
	requestID := ""
	var trackedRequest *TrackedRequest
	if relayState := r.PostForm.Get("RelayState"); relayState != "" {
		var err error
		trackedRequest, err = m.RequestTracker.GetTrackedRequest(r, relayState)
		if err != nil && err != ErrTrackedRequestNotFound {
			m.onError(w, r, err)
			return
		}
		if trackedRequest != nil {
			requestID = trackedRequest.SAMLRequestID
			redirectURI = trackedRequest.URI
		}
	}

	auth, err := saml.NewAuth(m.Settings)
	if err != nil {
		m.onError(w, r, err)
		return
	}
	if err := auth.ProcessResponse(r.PostForm, requestID); err != nil {
		m.onError(w, r, err)
		return
	}

	if err := m.Session.CreateSession(w, r, auth); err != nil {
		m.onError(w, r, err)
		return
	}
	if trackedRequest != nil {
		if err := m.RequestTracker.StopTrackingRequest(w, r, trackedRequest.Index); err != nil {
			log.WithError(err).Warn("cannot stop tracking request")
		}
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// ServeSLO consumes a single logout message from the identity
// provider: a LogoutRequest, answered with a redirect carrying our
// LogoutResponse, or a LogoutResponse ending an SP-initiated logout.
func (m *Middleware) ServeSLO(w http.ResponseWriter, r *http.Request) {
	auth, err := saml.NewAuth(m.Settings)
	if err != nil {
		m.onError(w, r, err)
		return
	}

	redirectURL, err := auth.ProcessSLO(r.URL.Query(), r.URL.RawQuery, saml.SLOOptions{
		DeleteSession: func() error { return m.Session.DeleteSession(w, r) },
	})
	if err != nil {
		m.onError(w, r, err)
		return
	}
	if redirectURL != "" {
		http.Redirect(w, r, redirectURL, http.StatusFound)
		return
	}
	redirectURI := m.DefaultRedirectURI
	if redirectURI == "" {
		redirectURI = "/"
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// StartLogout begins SP-initiated single logout for the current
// session by redirecting the browser to the identity provider.
func (m *Middleware) StartLogout(w http.ResponseWriter, r *http.Request) {
	session, err := m.Session.GetSession(r)
	if err != nil {
		m.onError(w, r, err)
		return
	}

	opts := saml.LogoutOptions{}
	if claims, ok := session.(JWTSessionClaims); ok {
		opts.NameID = claims.Subject
		opts.SessionIndex = claims.Attributes.Get(claimNameSessionIndex)
	}

	auth, err := saml.NewAuth(m.Settings)
	if err != nil {
		m.onError(w, r, err)
		return
	}
	redirectURL, err := auth.Logout(opts)
	if err != nil {
		m.onError(w, r, err)
		return
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (m *Middleware) onError(w http.ResponseWriter, r *http.Request, err error) {
	if m.OnError != nil {
		m.OnError(w, r, err)
		return
	}
	log.WithError(err).WithField("kind", saml.KindOf(err)).Warn("saml request failed")
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}
