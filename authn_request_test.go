package saml

import (
	"encoding/base64"
	"encoding/xml"
	"html"
	"net/url"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markfullmer/saml/testsaml"
)

func TestMakeAuthnRequest(t *testing.T) {
	s := testSettings(t)
	req := s.MakeAuthnRequest(AuthnRequestParams{})

	assert.True(t, strings.HasPrefix(req.ID, "id-"))
	assert.Equal(t, "2.0", req.Version)
	assert.Equal(t, idpSSOURL, req.Destination)
	assert.Equal(t, spACSURL, req.AssertionConsumerServiceURL)
	assert.Equal(t, HTTPPostBinding, req.ProtocolBinding)
	require.NotNil(t, req.Issuer)
	assert.Equal(t, spEntityID, req.Issuer.Value)
	assert.Nil(t, req.ForceAuthn)
	assert.Nil(t, req.IsPassive)
	require.NotNil(t, req.NameIDPolicy)
	require.NotNil(t, req.NameIDPolicy.AllowCreate)
	assert.True(t, *req.NameIDPolicy.AllowCreate)
	assert.Empty(t, req.NameIDPolicy.Format)
}

func TestMakeAuthnRequestOptions(t *testing.T) {
	s := testSettings(t)
	s.SP.NameIDFormat = EmailAddressNameIDFormat
	s.Security.RequestedAuthnContext = []string{
		"urn:oasis:names:tc:SAML:2.0:ac:classes:PasswordProtectedTransport",
	}

	req := s.MakeAuthnRequest(AuthnRequestParams{
		ForceAuthn:  true,
		IsPassive:   true,
		NameIDValue: "alice@example.com",
	})

	require.NotNil(t, req.ForceAuthn)
	assert.True(t, *req.ForceAuthn)
	require.NotNil(t, req.IsPassive)
	assert.True(t, *req.IsPassive)
	assert.Equal(t, string(EmailAddressNameIDFormat), req.NameIDPolicy.Format)
	require.NotNil(t, req.Subject)
	require.NotNil(t, req.Subject.NameID)
	assert.Equal(t, "alice@example.com", req.Subject.NameID.Value)
	require.NotNil(t, req.RequestedAuthnContext)
	assert.Equal(t, "exact", req.RequestedAuthnContext.Comparison)
	assert.Len(t, req.RequestedAuthnContext.AuthnContextClassRef, 1)
}

func TestMakeAuthnRequestOmitNameIDPolicy(t *testing.T) {
	s := testSettings(t)
	req := s.MakeAuthnRequest(AuthnRequestParams{OmitNameIDPolicy: true})
	assert.Nil(t, req.NameIDPolicy)
}

func TestAuthnRequestRedirectURL(t *testing.T) {
	s := testSettings(t)
	req := s.MakeAuthnRequest(AuthnRequestParams{})
	redirect, err := s.AuthnRequestRedirectURL(req, "/deep/link")
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", u.Host)
	assert.Equal(t, "/saml2/sso", u.Path)
	assert.Equal(t, "/deep/link", u.Query().Get("RelayState"))

	raw, err := testsaml.ParseRedirectRequest(u)
	require.NoError(t, err)
	var decoded AuthnRequest
	require.NoError(t, xml.Unmarshal(raw, &decoded))
	assert.Equal(t, req.ID, decoded.ID)
	assert.Equal(t, idpSSOURL, decoded.Destination)
	assert.Equal(t, spACSURL, decoded.AssertionConsumerServiceURL)
}

func TestAuthnRequestRedirectURLSigned(t *testing.T) {
	s := selfPlaySettings(t)
	s.Security.AuthnRequestsSigned = true

	req := s.MakeAuthnRequest(AuthnRequestParams{})
	redirect, err := s.AuthnRequestRedirectURL(req, "/deep/link")
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, SignatureMethodRSASHA256, u.Query().Get(string(SigAlg)))
	assert.NotEmpty(t, u.Query().Get(string(Signature)))
	require.NoError(t, s.validateQuerySignature(u.Query(), u.RawQuery))
}

func TestAuthnRequestPost(t *testing.T) {
	s := testSettings(t)
	req := s.MakeAuthnRequest(AuthnRequestParams{})
	form, err := s.AuthnRequestPost(req, "/deep/link")
	require.NoError(t, err)

	page := string(form)
	assert.Contains(t, page, `action="`+idpSSOURL+`"`)
	assert.Contains(t, page, `name="SAMLRequest"`)
	assert.Contains(t, page, `name="RelayState" value="/deep/link"`)

	encoded := extractFormValue(t, page, "SAMLRequest")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	var decoded AuthnRequest
	require.NoError(t, xml.Unmarshal(raw, &decoded))
	assert.Equal(t, req.ID, decoded.ID)
}

func TestAuthnRequestPostSigned(t *testing.T) {
	s := selfPlaySettings(t)
	s.Security.AuthnRequestsSigned = true

	req := s.MakeAuthnRequest(AuthnRequestParams{})
	form, err := s.AuthnRequestPost(req, "")
	require.NoError(t, err)

	encoded := extractFormValue(t, string(form), "SAMLRequest")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(raw))
	root := doc.Root()
	sigEl, err := findChild(root, signatureNamespace, "Signature")
	require.NoError(t, err)
	require.NotNil(t, sigEl)
	_, err = s.validateSignedElement(root, sigEl)
	require.NoError(t, err)
}

// extractFormValue pulls the value of a named hidden input out of the
// rendered POST form. html/template escapes attribute values, so
// base64 payloads come back with entities like &#43; in place of +.
func extractFormValue(t *testing.T, page, name string) string {
	t.Helper()
	marker := `name="` + name + `" value="`
	start := strings.Index(page, marker)
	require.NotEqual(t, -1, start, "input %q not found in form", name)
	rest := page[start+len(marker):]
	end := strings.Index(rest, `"`)
	require.NotEqual(t, -1, end)
	return html.UnescapeString(rest[:end])
}

func TestExtractFormValueUnescapesEntities(t *testing.T) {
	// The template escapes + to &#43; in attribute values, which must
	// not corrupt the base64 payload.
	page := `<input type="hidden" name="SAMLRequest" value="YWI&#43;Y2Q=">`
	got := extractFormValue(t, page, "SAMLRequest")
	assert.Equal(t, "YWI+Y2Q=", got)
	_, err := base64.StdEncoding.DecodeString(got)
	require.NoError(t, err)
}
