package saml

import (
	"encoding/xml"
	"net/url"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markfullmer/saml/testsaml"
)

func TestNewAuthRejectsInvalidSettings(t *testing.T) {
	_, err := NewAuth(&Settings{})
	assert.Equal(t, ErrSettingsInvalid, KindOf(err))
}

func TestAuthLogin(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	redirect, err := a.Login(LoginOptions{ReturnTo: "/deep/link"})
	require.NoError(t, err)
	require.NotEmpty(t, a.LastRequestID())
	assert.Contains(t, a.LastRequestXML(), a.LastRequestID())

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/deep/link", u.Query().Get("RelayState"))
	raw, err := testsaml.ParseRedirectRequest(u)
	require.NoError(t, err)
	var req AuthnRequest
	require.NoError(t, xml.Unmarshal(raw, &req))
	assert.Equal(t, a.LastRequestID(), req.ID)
}

func TestAuthLoginPost(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	form, err := a.LoginPost(LoginOptions{ReturnTo: "/deep/link"})
	require.NoError(t, err)
	assert.Contains(t, string(form), `action="`+idpSSOURL+`"`)
	assert.NotEmpty(t, a.LastRequestID())
}

func TestAuthProcessResponse(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)
	requestID := newMessageID()

	form := url.Values{}
	form.Set(string(SAMLResponse), newResponseBuilder(requestID).encode(t))
	require.NoError(t, a.ProcessResponse(form, requestID))

	assert.True(t, a.IsAuthenticated())
	require.NotNil(t, a.NameID())
	assert.Equal(t, "alice@example.com", a.NameID().Value)
	assert.Equal(t, "session-0001", a.SessionIndex())
	assert.Equal(t, []string{"alice"}, a.Attribute("urn:oid:0.9.2342.19200300.100.1.1"))
	assert.Equal(t, []string{"alice"}, a.FriendlyAttributes()["uid"])
	assert.Empty(t, a.Errors())
	assert.Empty(t, a.LastError())
	assert.NotEmpty(t, a.LastMessageID())
	assert.NotEmpty(t, a.LastAssertionID())
	assert.NotNil(t, a.LastAssertionNotOnOrAfter())
	assert.Contains(t, a.LastResponse(), a.LastMessageID())
}

func TestAuthLastResponseDecrypted(t *testing.T) {
	s := testSettings(t)
	s.Security.WantAssertionsEncrypted = true
	a, err := NewAuth(s)
	require.NoError(t, err)
	requestID := newMessageID()

	b := newResponseBuilder(requestID)
	b.encryptAssertion = true
	form := url.Values{}
	form.Set(string(SAMLResponse), b.encode(t))
	require.NoError(t, a.ProcessResponse(form, requestID))

	// after a successful validation the retained response is the
	// decrypted document, not the base64 payload as posted
	assert.Contains(t, a.LastResponse(), "alice@example.com")
	assert.NotContains(t, a.LastResponse(), "EncryptedAssertion")
}

func TestAuthProcessResponseMissingParameter(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	err = a.ProcessResponse(url.Values{}, "")
	assert.Equal(t, ErrSAMLResponseNotFound, KindOf(err))
	assert.False(t, a.IsAuthenticated())
}

func TestAuthProcessResponseKeepsStateOnFailure(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)
	requestID := newMessageID()

	form := url.Values{}
	form.Set(string(SAMLResponse), newResponseBuilder(requestID).encode(t))
	require.NoError(t, a.ProcessResponse(form, requestID))
	require.True(t, a.IsAuthenticated())

	// a later failed validation must not tear down the session state
	b := newResponseBuilder(newMessageID())
	b.signResponse = false
	form.Set(string(SAMLResponse), b.encode(t))
	err = a.ProcessResponse(form, newMessageID())
	require.Error(t, err)

	assert.True(t, a.IsAuthenticated())
	assert.Equal(t, "alice@example.com", a.NameID().Value)
	assert.Equal(t, "session-0001", a.SessionIndex())
}

func TestAuthAccumulatesErrors(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	unsigned := newResponseBuilder(newMessageID())
	unsigned.signResponse = false
	form := url.Values{}

	form.Set(string(SAMLResponse), unsigned.encode(t))
	require.Error(t, a.ProcessResponse(form, ""))

	expired := newResponseBuilder(newMessageID())
	expired.notOnOrAfter = TimeNow().Add(-time.Minute)
	form.Set(string(SAMLResponse), expired.encode(t))
	require.Error(t, a.ProcessResponse(form, ""))

	kinds := a.Errors()
	require.Len(t, kinds, 2)
	assert.Equal(t, ErrNoSignature, kinds[0])
	assert.Equal(t, ErrAssertionExpired, kinds[1])
	assert.Contains(t, a.LastError(), string(ErrAssertionExpired))
	assert.Equal(t, ErrAssertionExpired, KindOf(a.LastErrorCause()))
}

func TestAuthLogoutUsesEstablishedSession(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)
	requestID := newMessageID()

	form := url.Values{}
	form.Set(string(SAMLResponse), newResponseBuilder(requestID).encode(t))
	require.NoError(t, a.ProcessResponse(form, requestID))

	redirect, err := a.Logout(LogoutOptions{ReturnTo: "/bye"})
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	raw, err := testsaml.ParseRedirectRequest(u)
	require.NoError(t, err)
	var req LogoutRequest
	require.NoError(t, xml.Unmarshal(raw, &req))
	assert.Equal(t, "alice@example.com", req.NameID.Value)
	assert.Equal(t, []string{"session-0001"}, req.SessionIndex)
}

func TestAuthProcessSLOWithLogoutRequest(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	values, rawQuery := idpLogoutRequestQuery(t, nil)
	deleted := false
	redirect, err := a.ProcessSLO(values, rawQuery, SLOOptions{
		DeleteSession: func() error { deleted = true; return nil },
	})
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, a.IsAuthenticated())

	// the returned URL carries our LogoutResponse back to the idp
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "/saml2/slo", u.Path)
	raw, err := testsaml.ParseRedirectResponse(u)
	require.NoError(t, err)
	var resp LogoutResponse
	require.NoError(t, xml.Unmarshal(raw, &resp))
	assert.Equal(t, a.LastMessageID(), resp.InResponseTo)
	assert.Equal(t, StatusSuccess, resp.Status.StatusCode.Value)
}

func TestAuthProcessSLOWithLogoutResponse(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	values, rawQuery := idpLogoutResponseQuery(t, "id-originating-request", nil)
	deleted := false
	redirect, err := a.ProcessSLO(values, rawQuery, SLOOptions{
		RequestID:     "id-originating-request",
		DeleteSession: func() error { deleted = true; return nil },
	})
	require.NoError(t, err)
	assert.Empty(t, redirect)
	assert.True(t, deleted)
}

func TestAuthProcessSLOKeepLocalSession(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	values, rawQuery := idpLogoutResponseQuery(t, "", nil)
	called := false
	_, err = a.ProcessSLO(values, rawQuery, SLOOptions{
		KeepLocalSession: true,
		DeleteSession:    func() error { called = true; return nil },
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestAuthProcessSLODeleteSessionFailure(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	values, rawQuery := idpLogoutResponseQuery(t, "", nil)
	_, err = a.ProcessSLO(values, rawQuery, SLOOptions{
		DeleteSession: func() error { return errors.New("store is down") },
	})
	assert.Equal(t, ErrSessionDeleteFailed, KindOf(err))
}

func TestAuthProcessSLOWithoutMessage(t *testing.T) {
	a, err := NewAuth(testSettings(t))
	require.NoError(t, err)

	_, err = a.ProcessSLO(url.Values{}, "", SLOOptions{})
	assert.Equal(t, ErrSAMLLogoutMessageNotFound, KindOf(err))
}
