package saml

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementNamespace(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion"><saml:Assertion/></samlp:Response>`))

	// the prefix is declared on the parent, not the element itself
	assertionEl := doc.Root().ChildElements()[0]
	ns, err := elementNamespace(assertionEl)
	require.NoError(t, err)
	assert.Equal(t, assertionNamespace, ns)

	ns, err = elementNamespace(doc.Root())
	require.NoError(t, err)
	assert.Equal(t, protocolNamespace, ns)
}

func TestCheckSignatureConstraintsReferencePolicy(t *testing.T) {
	s := testSettings(t)

	sigEl := etree.NewElement("ds:Signature")
	signedInfo := sigEl.CreateElement("ds:SignedInfo")

	err := s.checkSignatureConstraints(sigEl, "id-0001")
	assert.Equal(t, ErrNoSignedElement, KindOf(err))

	ref := signedInfo.CreateElement("ds:Reference")
	ref.CreateAttr("URI", "#id-0001")
	require.NoError(t, s.checkSignatureConstraints(sigEl, "id-0001"))

	ref.CreateAttr("URI", "#id-attacker")
	err = s.checkSignatureConstraints(sigEl, "id-0001")
	assert.Equal(t, ErrInvalidSignedElement, KindOf(err))
	ref.CreateAttr("URI", "#id-0001")

	second := signedInfo.CreateElement("ds:Reference")
	second.CreateAttr("URI", "#id-0001")
	err = s.checkSignatureConstraints(sigEl, "id-0001")
	assert.Equal(t, ErrDuplicatedSignedElement, KindOf(err))
}

func TestSigningContextRequiresKeyMaterial(t *testing.T) {
	s := testSettings(t)
	s.SP.Key = nil
	_, err := s.signingContext()
	assert.Equal(t, ErrPrivateKeyNotFound, KindOf(err))

	s = testSettings(t)
	s.SP.Certificate = nil
	_, err = s.signingContext()
	assert.Equal(t, ErrCertNotFound, KindOf(err))
}
