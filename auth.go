package saml

import (
	"net/url"
	"time"
)

// Auth drives one browser's SAML interaction: building the messages we
// send and validating the ones we receive, while accumulating the
// session and diagnostic state of the exchange. An Auth is not safe
// for concurrent use; create one per request.
type Auth struct {
	settings *Settings

	// session result
	authenticated       bool
	nameID              *NameID
	attributes          map[string][]string
	friendlyAttributes  map[string][]string
	sessionIndex        string
	sessionExpiration   *time.Time

	// diagnostics
	errs                      []*Error
	lastError                 *Error
	lastRequestID             string
	lastRequest               string
	lastResponse              string
	lastMessageID             string
	lastAssertionID           string
	lastAssertionNotOnOrAfter *time.Time
}

// NewAuth validates settings and returns an orchestrator bound to
// them.
func NewAuth(settings *Settings) (*Auth, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Auth{settings: settings}, nil
}

// Settings returns the settings the orchestrator was built with.
func (a *Auth) Settings() *Settings { return a.settings }

// LoginOptions control the AuthnRequest Login builds.
type LoginOptions struct {
	// ReturnTo is carried as RelayState and echoed back by the
	// identity provider.
	ReturnTo string

	ForceAuthn       bool
	IsPassive        bool
	OmitNameIDPolicy bool
	NameIDValue      string
}

// Login builds an AuthnRequest and returns the URL to redirect the
// user's browser to. The request ID is retained for InResponseTo
// correlation.
func (a *Auth) Login(opts LoginOptions) (string, error) {
	req := a.settings.MakeAuthnRequest(AuthnRequestParams{
		ForceAuthn:       opts.ForceAuthn,
		IsPassive:        opts.IsPassive,
		OmitNameIDPolicy: opts.OmitNameIDPolicy,
		NameIDValue:      opts.NameIDValue,
	})

	redirectURL, err := a.settings.AuthnRequestRedirectURL(req, opts.ReturnTo)
	if err != nil {
		return "", a.fail(err)
	}
	a.lastRequestID = req.ID
	a.lastRequest = elementString(req.Element())
	return redirectURL, nil
}

// LoginPost is Login for identity providers that take AuthnRequest
// over the POST binding. It returns an HTML fragment with a
// self-submitting form.
func (a *Auth) LoginPost(opts LoginOptions) ([]byte, error) {
	req := a.settings.MakeAuthnRequest(AuthnRequestParams{
		ForceAuthn:       opts.ForceAuthn,
		IsPassive:        opts.IsPassive,
		OmitNameIDPolicy: opts.OmitNameIDPolicy,
		NameIDValue:      opts.NameIDValue,
	})
	form, err := a.settings.AuthnRequestPost(req, opts.ReturnTo)
	if err != nil {
		return nil, a.fail(err)
	}
	a.lastRequestID = req.ID
	a.lastRequest = elementString(req.Element())
	return form, nil
}

// ProcessResponse consumes a POST binding Response delivered to the
// assertion consumer service. form holds the posted values; requestID
// is the ID of the AuthnRequest being answered, or empty for an
// IdP-initiated response. A missing SAMLResponse parameter is returned
// immediately; validation failures are also recorded on the error
// list.
//
// The session result fields change only on success: a failed
// validation leaves any previously established state untouched.
func (a *Auth) ProcessResponse(form url.Values, requestID string) error {
	encoded := form.Get(string(SAMLResponse))
	if encoded == "" {
		return ErrSAMLResponseNotFound.errorf("SAMLResponse not found in the POST data")
	}
	a.lastResponse = encoded

	info, err := a.settings.ValidateResponse(encoded, requestID)
	if err != nil {
		return a.fail(err)
	}
	a.lastResponse = info.ResponseXML

	a.authenticated = true
	a.nameID = info.NameID
	a.attributes = info.Attributes
	a.friendlyAttributes = info.FriendlyAttributes
	a.sessionIndex = info.SessionIndex
	a.sessionExpiration = info.SessionNotOnOrAfter
	a.lastMessageID = info.ResponseID
	a.lastAssertionID = info.AssertionID
	a.lastAssertionNotOnOrAfter = info.AssertionNotOnOrAfter
	return nil
}

// LogoutOptions control the LogoutRequest Logout builds. Zero fields
// fall back to the state established by ProcessResponse.
type LogoutOptions struct {
	ReturnTo string

	NameID          string
	NameIDFormat    string
	NameQualifier   string
	SPNameQualifier string
	SessionIndex    string
}

// Logout builds a LogoutRequest and returns the URL to redirect the
// user's browser to. The request ID is retained so the eventual
// LogoutResponse can be correlated.
func (a *Auth) Logout(opts LogoutOptions) (string, error) {
	params := LogoutRequestParams{
		NameID:          opts.NameID,
		NameIDFormat:    opts.NameIDFormat,
		NameQualifier:   opts.NameQualifier,
		SPNameQualifier: opts.SPNameQualifier,
	}
	if params.NameID == "" && a.nameID != nil {
		params.NameID = a.nameID.Value
		params.NameIDFormat = a.nameID.Format
		params.NameQualifier = a.nameID.NameQualifier
		params.SPNameQualifier = a.nameID.SPNameQualifier
	}
	sessionIndex := opts.SessionIndex
	if sessionIndex == "" {
		sessionIndex = a.sessionIndex
	}
	if sessionIndex != "" {
		params.SessionIndexes = []string{sessionIndex}
	}

	req, err := a.settings.MakeLogoutRequest(params)
	if err != nil {
		return "", a.fail(err)
	}
	redirectURL, err := a.settings.LogoutRequestRedirectURL(req, opts.ReturnTo)
	if err != nil {
		return "", a.fail(err)
	}
	a.lastRequestID = req.ID
	a.lastRequest = elementString(req.Element())
	return redirectURL, nil
}

// SLOOptions control ProcessSLO.
type SLOOptions struct {
	// RequestID is the ID of the LogoutRequest we issued, when
	// processing the answer to an SP-initiated logout.
	RequestID string

	// KeepLocalSession skips the session deletion callback.
	KeepLocalSession bool

	// DeleteSession is invoked when a logout message validates and
	// the local session must end. Defaults to a no-op.
	DeleteSession func() error
}

// ProcessSLO consumes a Redirect binding single logout message: a
// LogoutRequest from the identity provider, answered with the returned
// redirect URL, or a LogoutResponse answering our own request, for
// which the returned URL is empty. rawQuery is the query string
// exactly as received, needed to verify signatures without re-encoding.
func (a *Auth) ProcessSLO(query url.Values, rawQuery string, opts SLOOptions) (string, error) {
	deleteSession := opts.DeleteSession
	if deleteSession == nil {
		deleteSession = func() error { return nil }
	}

	switch {
	case query.Get(string(SAMLResponse)) != "":
		a.lastResponse = query.Get(string(SAMLResponse))
		resp, err := a.settings.validateLogoutResponse(query, rawQuery, opts.RequestID)
		if err != nil {
			return "", a.fail(err)
		}
		a.lastMessageID = resp.ID
		if !opts.KeepLocalSession {
			if err := deleteSession(); err != nil {
				return "", a.fail(ErrSessionDeleteFailed.wrap(err, "deleting session"))
			}
		}
		a.authenticated = false
		return "", nil

	case query.Get(string(SAMLRequest)) != "":
		req, err := a.settings.validateLogoutRequest(query, rawQuery)
		if err != nil {
			return "", a.fail(err)
		}
		a.lastMessageID = req.ID
		if !opts.KeepLocalSession {
			if err := deleteSession(); err != nil {
				return "", a.fail(ErrSessionDeleteFailed.wrap(err, "deleting session"))
			}
		}
		a.authenticated = false

		resp := a.settings.MakeLogoutResponse(req.ID)
		redirectURL, err := a.settings.LogoutResponseRedirectURL(resp, query.Get(string(RelayState)))
		if err != nil {
			return "", a.fail(err)
		}
		return redirectURL, nil

	default:
		return "", ErrSAMLLogoutMessageNotFound.errorf("neither SAMLRequest nor SAMLResponse found in the query")
	}
}

// IsAuthenticated reports whether a Response has validated.
func (a *Auth) IsAuthenticated() bool { return a.authenticated }

// NameID returns the authenticated subject identifier, or nil.
func (a *Auth) NameID() *NameID { return a.nameID }

// Attributes returns the asserted attributes keyed by Name.
func (a *Auth) Attributes() map[string][]string { return a.attributes }

// FriendlyAttributes returns the asserted attributes keyed by
// FriendlyName, for those that carry one.
func (a *Auth) FriendlyAttributes() map[string][]string { return a.friendlyAttributes }

// Attribute returns the values of one attribute, or nil.
func (a *Auth) Attribute(name string) []string { return a.attributes[name] }

// SessionIndex returns the identity provider session index.
func (a *Auth) SessionIndex() string { return a.sessionIndex }

// SessionExpiration returns the asserted session deadline, or nil.
func (a *Auth) SessionExpiration() *time.Time { return a.sessionExpiration }

// Errors returns the kinds of every validation failure so far.
func (a *Auth) Errors() []ErrorKind {
	kinds := make([]ErrorKind, len(a.errs))
	for i, err := range a.errs {
		kinds[i] = err.Kind
	}
	return kinds
}

// LastError returns a human readable description of the most recent
// failure, or "".
func (a *Auth) LastError() string {
	if a.lastError == nil {
		return ""
	}
	return a.lastError.Error()
}

// LastErrorCause returns the most recent failure, or nil.
func (a *Auth) LastErrorCause() error {
	if a.lastError == nil {
		return nil
	}
	return a.lastError
}

// LastRequestID returns the ID of the most recent request we built.
func (a *Auth) LastRequestID() string { return a.lastRequestID }

// LastRequestXML returns the XML of the most recent request we built.
func (a *Auth) LastRequestXML() string { return a.lastRequest }

// LastResponse returns the most recent response processed: its XML,
// decrypted where an EncryptedAssertion was unwrapped, once validation
// succeeds, or the payload as received when it fails.
func (a *Auth) LastResponse() string { return a.lastResponse }

// LastMessageID returns the ID of the most recent validated message.
func (a *Auth) LastMessageID() string { return a.lastMessageID }

// LastAssertionID returns the ID of the most recent validated
// assertion, a replay cache key.
func (a *Auth) LastAssertionID() string { return a.lastAssertionID }

// LastAssertionNotOnOrAfter returns the replay cache eviction hint of
// the most recent validated assertion.
func (a *Auth) LastAssertionNotOnOrAfter() *time.Time { return a.lastAssertionNotOnOrAfter }

// fail records err on the diagnostic state and returns it.
func (a *Auth) fail(err error) error {
	samlErr, ok := err.(*Error)
	if !ok {
		samlErr = &Error{Kind: ErrInvalidXML, Detail: err.Error(), cause: err}
	}
	a.errs = append(a.errs, samlErr)
	a.lastError = samlErr
	return samlErr
}
