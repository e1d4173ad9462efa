package saml

import (
	"bytes"
	"html/template"
	"net/url"
)

// AuthnRequestParams control the optional content of an AuthnRequest.
type AuthnRequestParams struct {
	// ForceAuthn asks the identity provider to re-authenticate the
	// user even if a session exists.
	ForceAuthn bool

	// IsPassive forbids the identity provider from interacting with
	// the user.
	IsPassive bool

	// OmitNameIDPolicy leaves the NameIDPolicy element out entirely.
	OmitNameIDPolicy bool

	// NameIDValue, when set, is sent as a Subject hint naming the user
	// the service provider expects to authenticate.
	NameIDValue string
}

// MakeAuthnRequest produces a new AuthnRequest addressed to the
// configured identity provider single sign-on endpoint.
func (s *Settings) MakeAuthnRequest(params AuthnRequestParams) *AuthnRequest {
	req := &AuthnRequest{
		ID:                          newMessageID(),
		Version:                     "2.0",
		IssueInstant:                RelaxedTime(TimeNow()),
		Destination:                 s.IdP.SingleSignOnServiceURL,
		AssertionConsumerServiceURL: s.SP.AssertionConsumerServiceURL,
		ProtocolBinding:             HTTPPostBinding,
		Issuer:                      &Issuer{Value: s.SP.EntityID},
	}
	if params.ForceAuthn {
		t := true
		req.ForceAuthn = &t
	}
	if params.IsPassive {
		t := true
		req.IsPassive = &t
	}
	if !params.OmitNameIDPolicy {
		allowCreate := true
		policy := &NameIDPolicy{AllowCreate: &allowCreate}
		if s.SP.NameIDFormat != "" {
			policy.Format = string(s.SP.NameIDFormat)
		}
		req.NameIDPolicy = policy
	}
	if params.NameIDValue != "" {
		req.Subject = &Subject{
			NameID: &NameID{
				Value:  params.NameIDValue,
				Format: string(s.SP.NameIDFormat),
			},
		}
	}
	if len(s.Security.RequestedAuthnContext) > 0 {
		comparison := s.Security.RequestedAuthnContextComparison
		if comparison == "" {
			comparison = "exact"
		}
		req.RequestedAuthnContext = &RequestedAuthnContext{
			Comparison:           comparison,
			AuthnContextClassRef: s.Security.RequestedAuthnContext,
		}
	}
	return req
}

// AuthnRequestRedirectURL encodes req for the Redirect binding and
// returns the URL the user's browser should be sent to. The query is
// signed when AuthnRequestsSigned is set.
func (s *Settings) AuthnRequestRedirectURL(req *AuthnRequest, relayState string) (string, error) {
	encoded, err := deflateEncode(req.Element())
	if err != nil {
		return "", err
	}
	query, err := s.redirectQuery(SAMLRequest, encoded, relayState, s.Security.AuthnRequestsSigned)
	if err != nil {
		return "", err
	}
	return buildRedirectURL(s.IdP.SingleSignOnServiceURL, query)
}

// AuthnRequestPost encodes req for the POST binding and returns an
// HTML fragment containing a self-submitting form. The message carries
// an enveloped signature when AuthnRequestsSigned is set.
func (s *Settings) AuthnRequestPost(req *AuthnRequest, relayState string) ([]byte, error) {
	el := req.Element()
	if s.Security.AuthnRequestsSigned {
		if err := s.signElement(el); err != nil {
			return nil, err
		}
	}
	encoded, err := postEncode(el)
	if err != nil {
		return nil, err
	}
	return renderPostForm(s.IdP.SingleSignOnServiceURL, SAMLRequest, encoded, relayState)
}

// redirectQuery assembles the Redirect binding query string, signed or
// not.
func (s *Settings) redirectQuery(paramType queryParam, encodedMessage, relayState string, sign bool) (string, error) {
	if sign {
		return s.signQuery(paramType, encodedMessage, relayState)
	}
	query := string(paramType) + "=" + url.QueryEscape(encodedMessage)
	if relayState != "" {
		query += "&RelayState=" + url.QueryEscape(relayState)
	}
	return query, nil
}

var postFormTemplate = template.Must(template.New("saml-post-form").Parse(
	`<form method="post" action="{{.URL}}" id="SAMLRequestForm">` +
		`<input type="hidden" name="{{.Param}}" value="{{.Message}}" />` +
		`{{if .RelayState}}<input type="hidden" name="RelayState" value="{{.RelayState}}" />{{end}}` +
		`<input id="SAMLSubmitButton" type="submit" value="Submit" />` +
		`</form>` +
		`<script>document.getElementById('SAMLSubmitButton').style.visibility="hidden";` +
		`document.getElementById('SAMLRequestForm').submit();</script>`))

// renderPostForm produces the self-submitting HTML form that delivers
// a POST binding message through the user's browser.
func renderPostForm(actionURL string, param queryParam, encodedMessage, relayState string) ([]byte, error) {
	buf := &bytes.Buffer{}
	err := postFormTemplate.Execute(buf, struct {
		URL        string
		Param      string
		Message    string
		RelayState string
	}{actionURL, string(param), encodedMessage, relayState})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
