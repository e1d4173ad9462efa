package saml

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"os"
	"testing"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/stretchr/testify/require"
)

// Endpoints shared by the test fixtures. The sp settings under test
// point at the idp endpoints, and the idp-playing settings point back.
const (
	spEntityID  = "https://sp.example.com/metadata"
	spACSURL    = "https://sp.example.com/saml/acs"
	spSLOURL    = "https://sp.example.com/saml/slo"
	idpEntityID = "https://idp.example.com/metadata"
	idpSSOURL   = "https://idp.example.com/saml2/sso"
	idpSLOURL   = "https://idp.example.com/saml2/slo"
)

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	return buf
}

func testSPKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := ParsePrivateKey(mustReadFile(t, "testdata/sp_key.pem"))
	require.NoError(t, err)
	return key
}

func testSPCertificate(t *testing.T) *x509.Certificate {
	t.Helper()
	cert, err := ParseCertificate(mustReadFile(t, "testdata/sp_cert.pem"))
	require.NoError(t, err)
	return cert
}

func testIdPKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := ParsePrivateKey(mustReadFile(t, "testdata/idp_key.pem"))
	require.NoError(t, err)
	return key
}

func testIdPCertificate(t *testing.T) *x509.Certificate {
	t.Helper()
	cert, err := ParseCertificate(mustReadFile(t, "testdata/idp_cert.pem"))
	require.NoError(t, err)
	return cert
}

// testSettings is the service provider configuration under test.
func testSettings(t *testing.T) *Settings {
	t.Helper()
	s := &Settings{
		Strict: true,
		SP: SPSettings{
			EntityID:                    spEntityID,
			AssertionConsumerServiceURL: spACSURL,
			SingleLogoutServiceURL:      spSLOURL,
			Key:                         testSPKey(t),
			Certificate:                 testSPCertificate(t),
		},
		IdP: IdPSettings{
			EntityID:               idpEntityID,
			SingleSignOnServiceURL: idpSSOURL,
			SingleLogoutServiceURL: idpSLOURL,
			Certificates:           []*x509.Certificate{testIdPCertificate(t)},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

// idpPlaySettings is a second Settings that plays the identity
// provider: its sp-side identity is the idp entity and its "idp"
// endpoints are our service provider's, so the messages it builds are
// the messages our validators receive.
func idpPlaySettings(t *testing.T) *Settings {
	t.Helper()
	s := &Settings{
		Strict: true,
		SP: SPSettings{
			EntityID:                    idpEntityID,
			AssertionConsumerServiceURL: spACSURL,
			SingleLogoutServiceURL:      idpSLOURL,
			Key:                         testIdPKey(t),
			Certificate:                 testIdPCertificate(t),
		},
		IdP: IdPSettings{
			EntityID:               spEntityID,
			SingleSignOnServiceURL: spACSURL,
			SingleLogoutServiceURL: spSLOURL,
			Certificates:           []*x509.Certificate{testSPCertificate(t)},
		},
	}
	require.NoError(t, s.Validate())
	return s
}

// signTestElement signs el the way an identity provider would: an
// enveloped signature inserted after the Issuer child.
func signTestElement(t *testing.T, key *rsa.PrivateKey, cert *x509.Certificate, method string, el *etree.Element) {
	t.Helper()
	keyPair := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(keyPair))
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	require.NoError(t, ctx.SetSignatureMethod(method))

	sigEl, err := ctx.ConstructSignature(el, true)
	require.NoError(t, err)

	children := el.ChildElements()
	for _, child := range children {
		el.RemoveChild(child)
	}
	inserted := false
	for _, child := range children {
		el.AddChild(child)
		if !inserted && child.Tag == "Issuer" {
			el.AddChild(sigEl)
			inserted = true
		}
	}
	if !inserted {
		el.AddChild(sigEl)
	}
}
