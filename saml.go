// Package saml implements the service provider side of the SAML 2.0
// Web Browser SSO and Single Logout profiles.
//
// In SAML, service providers delegate responsibility for identifying
// clients to an identity provider. The Auth type drives a single
// browser interaction: it builds AuthnRequest and LogoutRequest
// messages, validates the Response and logout messages the identity
// provider sends back, and exposes the authenticated subject and its
// attributes.
//
// See http://docs.oasis-open.org/security/saml/v2.0/saml-core-2.0-os.pdf
package saml

import "time"

// MaxIssueDelay is the longest allowed time between when a request is
// issued and the response is processed.
const MaxIssueDelay = time.Minute * 90

// SAML protocol bindings supported by this package.
const (
	// HTTPRedirectBinding is the official URN for the HTTP-Redirect binding (transport)
	HTTPRedirectBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"

	// HTTPPostBinding is the official URN for the HTTP-POST binding (transport)
	HTTPPostBinding = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
)

// Namespaces used throughout the protocol messages.
const (
	protocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	assertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	signatureNamespace = "http://www.w3.org/2000/09/xmldsig#"
	encryptionNamespace = "http://www.w3.org/2001/04/xmlenc#"
)

// NameIDFormat is the format of the id
type NameIDFormat string

// Name ID formats
const (
	UnspecifiedNameIDFormat  NameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
	TransientNameIDFormat    NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:transient"
	EmailAddressNameIDFormat NameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"
	PersistentNameIDFormat   NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent"
	EntityNameIDFormat       NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:entity"
	EncryptedNameIDFormat    NameIDFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:encrypted"
)

// StatusSuccess is the value of a StatusCode element when the request succeeds.
const StatusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

// SubjectConfirmationMethodBearer is the only subject confirmation method
// accepted by the response validator.
const SubjectConfirmationMethodBearer = "urn:oasis:names:tc:SAML:2.0:cm:bearer"

// Signature method URIs per XML Signature.
const (
	SignatureMethodRSASHA1   = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	SignatureMethodRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	SignatureMethodRSASHA384 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha384"
	SignatureMethodRSASHA512 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
)

// Digest method URIs per XML Signature.
const (
	DigestMethodSHA1   = "http://www.w3.org/2000/09/xmldsig#sha1"
	DigestMethodSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	DigestMethodSHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	DigestMethodSHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"
)

// Canonicalization method URIs accepted in signatures we verify.
const (
	CanonicalXML10ExclusiveAlgorithmID             = "http://www.w3.org/2001/10/xml-exc-c14n#"
	CanonicalXML10ExclusiveWithCommentsAlgorithmID = "http://www.w3.org/2001/10/xml-exc-c14n#WithComments"
	EnvelopedSignatureAlgorithmID                  = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Key transport algorithm URIs per XML Encryption.
const (
	KeyTransportRSAOAEPMGF1P = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
	KeyTransportRSA15        = "http://www.w3.org/2001/04/xmlenc#rsa-1_5"
)

// deprecatedSignatureMethods are refused on received messages when
// Security.RejectDeprecatedAlgorithm is set.
var deprecatedSignatureMethods = map[string]bool{
	SignatureMethodRSASHA1: true,
}

// deprecatedDigestMethods are refused on received messages when
// Security.RejectDeprecatedAlgorithm is set.
var deprecatedDigestMethods = map[string]bool{
	DigestMethodSHA1: true,
}

// deprecatedKeyTransportMethods are refused on received messages when
// Security.RejectDeprecatedAlgorithm is set.
var deprecatedKeyTransportMethods = map[string]bool{
	KeyTransportRSA15: true,
}
