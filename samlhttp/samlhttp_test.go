package samlhttp

import (
	"crypto/rsa"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markfullmer/saml"
)

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	return buf
}

func testSPKey(t *testing.T) *rsa.PrivateKey {
	key, err := saml.ParsePrivateKey(mustReadFile(t, "../testdata/sp_key.pem"))
	require.NoError(t, err)
	return key
}

func testSPCertificate(t *testing.T) *x509.Certificate {
	cert, err := saml.ParseCertificate(mustReadFile(t, "../testdata/sp_cert.pem"))
	require.NoError(t, err)
	return cert
}

func testIdPCertificate(t *testing.T) *x509.Certificate {
	cert, err := saml.ParseCertificate(mustReadFile(t, "../testdata/idp_cert.pem"))
	require.NoError(t, err)
	return cert
}

func testMiddleware(t *testing.T) *Middleware {
	t.Helper()
	rootURL, err := url.Parse("https://sp.example.com")
	require.NoError(t, err)
	m, err := New(Options{
		URL:         *rootURL,
		Key:         testSPKey(t),
		Certificate: testSPCertificate(t),
		IdP: saml.IdPSettings{
			EntityID:               "https://idp.example.com/saml2/metadata",
			SingleSignOnServiceURL: "https://idp.example.com/saml2/sso",
			SingleLogoutServiceURL: "https://idp.example.com/saml2/slo",
			Certificates:           []*x509.Certificate{testIdPCertificate(t)},
		},
	})
	require.NoError(t, err)
	return m
}

func TestNewDerivesEndpoints(t *testing.T) {
	m := testMiddleware(t)
	assert.Equal(t, "https://sp.example.com/saml/acs", m.Settings.SP.AssertionConsumerServiceURL)
	assert.Equal(t, "https://sp.example.com/saml/slo", m.Settings.SP.SingleLogoutServiceURL)
	assert.Equal(t, "https://sp.example.com/saml/acs", m.Settings.SP.EntityID)
	assert.True(t, m.Settings.Strict)
	assert.True(t, m.Settings.Security.RejectUnsolicitedResponsesWithInResponseTo)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRequireAccountRedirectsToIdP(t *testing.T) {
	m := testMiddleware(t)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be called without a session")
	})

	r := httptest.NewRequest("GET", "https://sp.example.com/hello", nil)
	w := httptest.NewRecorder()
	m.RequireAccount(inner).ServeHTTP(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", location.Host)
	assert.Equal(t, "/saml2/sso", location.Path)
	assert.NotEmpty(t, location.Query().Get("SAMLRequest"))

	relayState := location.Query().Get("RelayState")
	require.NotEmpty(t, relayState)

	// the tracking cookie must decode back to the pending request
	resp := w.Result()
	var trackingCookie *http.Cookie
	for _, cookie := range resp.Cookies() {
		if strings.HasPrefix(cookie.Name, "saml_") {
			trackingCookie = cookie
		}
	}
	require.NotNil(t, trackingCookie)
	r2 := httptest.NewRequest("POST", "https://sp.example.com/saml/acs", nil)
	r2.AddCookie(trackingCookie)
	tracked, err := m.RequestTracker.GetTrackedRequest(r2, relayState)
	require.NoError(t, err)
	assert.Equal(t, "https://sp.example.com/hello", tracked.URI)
	assert.True(t, strings.HasPrefix(tracked.SAMLRequestID, "id-"))
}

func TestRequireAccountServesWithSession(t *testing.T) {
	m := testMiddleware(t)
	var sawSession Session
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSession = SessionFromContext(r)
		w.WriteHeader(http.StatusTeapot)
	})

	codec := m.Session.(CookieSessionProvider).Codec.(JWTSessionCodec)
	claims := JWTSessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{codec.Audience},
			Issuer:    codec.Issuer,
			IssuedAt:  jwt.NewNumericDate(saml.TimeNow()),
			ExpiresAt: jwt.NewNumericDate(saml.TimeNow().Add(time.Hour)),
			Subject:   "alice@example.com",
		},
		Attributes:  Attributes{"uid": {"alice"}},
		SAMLSession: true,
	}
	value, err := codec.Encode(claims)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "https://sp.example.com/hello", nil)
	r.AddCookie(&http.Cookie{Name: defaultSessionCookieName, Value: value})
	w := httptest.NewRecorder()
	m.RequireAccount(inner).ServeHTTP(w, r)

	assert.Equal(t, http.StatusTeapot, w.Code)
	require.NotNil(t, sawSession)
	assert.Equal(t, "alice", AttributeFromContext(r.WithContext(
		contextWithSession(r.Context(), sawSession)), "uid"))
}

func TestSessionCodecRoundTrip(t *testing.T) {
	codec := JWTSessionCodec{
		SigningMethod: jwt.SigningMethodRS256,
		Audience:      "https://sp.example.com/saml/acs",
		Issuer:        "https://sp.example.com/saml/acs",
		MaxAge:        time.Hour,
		Key:           testSPKey(t),
	}
	claims := JWTSessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{codec.Audience},
			Issuer:    codec.Issuer,
			IssuedAt:  jwt.NewNumericDate(saml.TimeNow()),
			ExpiresAt: jwt.NewNumericDate(saml.TimeNow().Add(time.Hour)),
			Subject:   "alice@example.com",
		},
		Attributes:  Attributes{"mail": {"alice@example.com"}, "groups": {"staff", "admin"}},
		SAMLSession: true,
	}

	value, err := codec.Encode(claims)
	require.NoError(t, err)
	decoded, err := codec.Decode(value)
	require.NoError(t, err)
	session := decoded.(JWTSessionClaims)
	assert.Equal(t, "alice@example.com", session.Subject)
	assert.Equal(t, "staff", session.GetAttributes().Get("groups"))
}

func TestSessionCodecRejectsForeignToken(t *testing.T) {
	codec := JWTSessionCodec{
		SigningMethod: jwt.SigningMethodRS256,
		Audience:      "https://sp.example.com/saml/acs",
		Issuer:        "https://sp.example.com/saml/acs",
		MaxAge:        time.Hour,
		Key:           testSPKey(t),
	}

	// a valid JWT that is not a session token
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{codec.Audience},
		Issuer:    codec.Issuer,
		ExpiresAt: jwt.NewNumericDate(saml.TimeNow().Add(time.Hour)),
	})
	value, err := token.SignedString(codec.Key)
	require.NoError(t, err)

	_, err = codec.Decode(value)
	require.EqualError(t, err, "expected saml-session")
}

func TestServeHTTPRoutes(t *testing.T) {
	m := testMiddleware(t)

	r := httptest.NewRequest("GET", "https://sp.example.com/saml/whatever", nil)
	w := httptest.NewRecorder()
	m.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// a POST to the ACS without a SAMLResponse is forbidden
	r = httptest.NewRequest("POST", "https://sp.example.com/saml/acs", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	m.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a GET to the SLO endpoint without a SAML message is forbidden
	r = httptest.NewRequest("GET", "https://sp.example.com/saml/slo", nil)
	w = httptest.NewRecorder()
	m.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStopTrackingRequestClearsCookie(t *testing.T) {
	m := testMiddleware(t)
	tracker := m.RequestTracker.(CookieRequestTracker)

	r := httptest.NewRequest("GET", "https://sp.example.com/deep/link", nil)
	w := httptest.NewRecorder()
	index, err := tracker.TrackRequest(w, r, "id-00020406080a0c0e10121416181a1c1e20222426")
	require.NoError(t, err)

	var trackingCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == tracker.NamePrefix+index {
			trackingCookie = cookie
		}
	}
	require.NotNil(t, trackingCookie)

	r2 := httptest.NewRequest("POST", "https://sp.example.com/saml/acs", nil)
	r2.AddCookie(trackingCookie)
	w2 := httptest.NewRecorder()
	require.NoError(t, tracker.StopTrackingRequest(w2, r2, index))
	cleared := w2.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.True(t, cleared[0].Expires.Before(saml.TimeNow()))
}
