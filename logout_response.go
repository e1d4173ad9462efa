package saml

import (
	"bytes"
	"encoding/xml"
	"net/url"

	"github.com/beevik/etree"
	xrv "github.com/mattermost/xml-roundtrip-validator"
)

// MakeLogoutResponse produces a successful LogoutResponse answering
// the identity provider request identified by inResponseTo.
func (s *Settings) MakeLogoutResponse(inResponseTo string) *LogoutResponse {
	return &LogoutResponse{
		ID:           newMessageID(),
		InResponseTo: inResponseTo,
		Version:      "2.0",
		IssueInstant: RelaxedTime(TimeNow()),
		Destination:  s.logoutResponseDestination(),
		Issuer:       &Issuer{Value: s.SP.EntityID},
		Status:       Status{StatusCode: StatusCode{Value: StatusSuccess}},
	}
}

// logoutResponseDestination is where our LogoutResponse messages go:
// the dedicated response endpoint when the identity provider publishes
// one, its single logout endpoint otherwise.
func (s *Settings) logoutResponseDestination() string {
	if s.IdP.SingleLogoutServiceResponseURL != "" {
		return s.IdP.SingleLogoutServiceResponseURL
	}
	return s.IdP.SingleLogoutServiceURL
}

// LogoutResponseRedirectURL encodes resp for the Redirect binding. The
// query is signed when LogoutResponseSigned is set.
func (s *Settings) LogoutResponseRedirectURL(resp *LogoutResponse, relayState string) (string, error) {
	encoded, err := deflateEncode(resp.Element())
	if err != nil {
		return "", err
	}
	query, err := s.redirectQuery(SAMLResponse, encoded, relayState, s.Security.LogoutResponseSigned)
	if err != nil {
		return "", err
	}
	return buildRedirectURL(s.logoutResponseDestination(), query)
}

// LogoutResponsePost encodes resp for the POST binding as a
// self-submitting form, with an enveloped signature when
// LogoutResponseSigned is set.
func (s *Settings) LogoutResponsePost(resp *LogoutResponse, relayState string) ([]byte, error) {
	el := resp.Element()
	if s.Security.LogoutResponseSigned {
		if err := s.signElement(el); err != nil {
			return nil, err
		}
	}
	encoded, err := postEncode(el)
	if err != nil {
		return nil, err
	}
	return renderPostForm(s.logoutResponseDestination(), SAMLResponse, encoded, relayState)
}

// validateLogoutResponse decodes and validates a LogoutResponse
// received over the Redirect binding. requestID, when not empty, is
// the ID of the LogoutRequest we issued and the response must answer
// it.
func (s *Settings) validateLogoutResponse(query url.Values, rawQuery, requestID string) (*LogoutResponse, error) {
	raw, err := deflateDecode(query.Get(string(SAMLResponse)))
	if err != nil {
		return nil, err
	}
	if err := xrv.Validate(bytes.NewReader(raw)); err != nil {
		return nil, ErrInvalidXML.wrap(err, "logout response failed roundtrip validation")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot parse logout response")
	}
	root := doc.Root()
	if root == nil || root.Tag != "LogoutResponse" {
		return nil, ErrSchemaViolation.errorf("expected a LogoutResponse document")
	}

	resp := &LogoutResponse{}
	if err := xml.Unmarshal(raw, resp); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot unmarshal logout response")
	}

	if s.Strict {
		if resp.Version != "2.0" {
			return nil, ErrWrongVersion.errorf("logout response version %q", resp.Version)
		}
		if resp.ID == "" {
			return nil, ErrMissingID.errorf("logout response has no ID")
		}
		if resp.Issuer != nil && resp.Issuer.Value != s.IdP.EntityID {
			return nil, ErrInvalidIssuer.errorf("logout response issuer %q, want %q", resp.Issuer.Value, s.IdP.EntityID)
		}
		if resp.Destination != "" && !destinationMatches(resp.Destination, s.SP.SingleLogoutServiceURL) {
			return nil, ErrInvalidDestination.errorf("logout response destination %q, want %q", resp.Destination, s.SP.SingleLogoutServiceURL)
		}
		if requestID != "" && resp.InResponseTo != "" && resp.InResponseTo != requestID {
			return nil, ErrInvalidInResponseTo.errorf("logout response answers %q, want %q", resp.InResponseTo, requestID)
		}
	}

	if resp.Status.StatusCode.Value == "" {
		return nil, ErrStatusCodeNotFound.errorf("logout response carries no status code")
	}
	if resp.Status.StatusCode.Value != StatusSuccess {
		return nil, ErrResponseStatusError.errorf("logout response status %q", resp.Status.StatusCode.Value)
	}

	if s.Security.WantMessagesSigned || query.Get(string(Signature)) != "" {
		if err := s.validateQuerySignature(query, rawQuery); err != nil {
			return nil, err
		}
	}

	return resp, nil
}
