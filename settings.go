package saml

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
)

// SPSettings describes this service provider.
type SPSettings struct {
	// EntityID uniquely identifies this service provider to identity
	// providers. It is conventionally the metadata URL.
	EntityID string

	// AssertionConsumerServiceURL is where the identity provider POSTs
	// Response messages.
	AssertionConsumerServiceURL string
	AssertionConsumerServiceBinding string

	// SingleLogoutServiceURL receives logout messages over the
	// Redirect binding. Optional.
	SingleLogoutServiceURL     string
	SingleLogoutServiceBinding string

	// NameIDFormat requested in AuthnRequest NameIDPolicy. Empty means
	// the policy element carries no Format.
	NameIDFormat NameIDFormat

	// Key signs outgoing messages and decrypts incoming encrypted
	// assertions and name identifiers. Required only when a toggle
	// that signs or decrypts is enabled.
	Key *rsa.PrivateKey

	// Certificate is published in metadata and embedded in signatures.
	Certificate *x509.Certificate

	// NewCertificate is an optional successor certificate published
	// alongside Certificate during key rollover.
	NewCertificate *x509.Certificate
}

// IdPSettings describes the identity provider this service provider
// trusts.
type IdPSettings struct {
	EntityID string

	// SingleSignOnServiceURL receives AuthnRequest messages.
	SingleSignOnServiceURL     string
	SingleSignOnServiceBinding string

	// SingleLogoutServiceURL receives LogoutRequest messages.
	// SingleLogoutServiceResponseURL, when set, receives our
	// LogoutResponse messages instead.
	SingleLogoutServiceURL         string
	SingleLogoutServiceResponseURL string
	SingleLogoutServiceBinding     string

	// Certificates holds the identity provider signing certificates.
	// Signatures must verify against one of them.
	Certificates []*x509.Certificate

	// CertFingerprints is a weaker alternative to Certificates: a
	// signature verifies if the certificate embedded in the signed
	// message matches one of these fingerprints. Hex, case
	// insensitive, colons permitted.
	CertFingerprints           []string
	CertFingerprintAlgorithm   string
}

// SecuritySettings holds the toggles controlling what this service
// provider signs, requires and refuses.
type SecuritySettings struct {
	AuthnRequestsSigned  bool
	LogoutRequestSigned  bool
	LogoutResponseSigned bool

	// NameIDEncrypted encrypts the NameID of outgoing LogoutRequest
	// messages against the identity provider certificate.
	NameIDEncrypted bool

	WantMessagesSigned      bool
	WantAssertionsSigned    bool
	WantAssertionsEncrypted bool
	WantNameIDEncrypted     bool

	// WantXMLValidation enables a structural validation pass over
	// received messages before any other processing.
	WantXMLValidation bool

	// SignatureAlgorithm is the method used for outgoing signatures.
	// Defaults to RSA-SHA256.
	SignatureAlgorithm string

	// DigestAlgorithm is the reference digest for outgoing embedded
	// signatures. Defaults to SHA256.
	DigestAlgorithm string

	// RejectDeprecatedAlgorithm refuses received messages signed or
	// digested with SHA-1 and keys transported with RSA PKCS#1 v1.5.
	RejectDeprecatedAlgorithm bool

	// LowercaseURLEncoding reproduces the lowercase percent-encoding
	// that AD FS emits when reconstructing signed redirect queries.
	LowercaseURLEncoding bool

	// RetrieveParametersFromServer verifies redirect signatures
	// against the raw query string instead of re-encoding decoded
	// parameters.
	RetrieveParametersFromServer bool

	// RejectUnsolicitedResponsesWithInResponseTo refuses responses
	// that carry InResponseTo when no request ID was recorded.
	RejectUnsolicitedResponsesWithInResponseTo bool

	RequestedAuthnContext           []string
	RequestedAuthnContextComparison string

	// ClockSkew widens every temporal check in both directions.
	ClockSkew time.Duration
}

// Settings is the frozen configuration consulted by every builder and
// validator. Construct it, call Validate once, and treat it as read
// only afterwards; a validated Settings is safe for concurrent use.
type Settings struct {
	// Strict enables the validations that production deployments
	// require: destination, issuer, audience, temporal and signature
	// requirement checks. Disabling it is for development only.
	Strict bool

	SP       SPSettings
	IdP      IdPSettings
	Security SecuritySettings

	// SchemaPath optionally points at a local copy of the SAML
	// protocol schemas for the structural validation pass.
	SchemaPath string
}

// SetStrict toggles strict validation. It is the only permitted
// mutation after Validate.
func (s *Settings) SetStrict(strict bool) { s.Strict = strict }

var knownSignatureMethods = map[string]bool{
	SignatureMethodRSASHA1:   true,
	SignatureMethodRSASHA256: true,
	SignatureMethodRSASHA384: true,
	SignatureMethodRSASHA512: true,
}

var knownDigestMethods = map[string]bool{
	DigestMethodSHA1:   true,
	DigestMethodSHA256: true,
	DigestMethodSHA384: true,
	DigestMethodSHA512: true,
}

var knownFingerprintAlgorithms = map[string]bool{
	"sha1": true, "sha256": true, "sha384": true, "sha512": true,
}

// Validate applies defaults and checks the settings for internal
// consistency. It must be called before the settings are used.
func (s *Settings) Validate() error {
	if s.Security.SignatureAlgorithm == "" {
		s.Security.SignatureAlgorithm = SignatureMethodRSASHA256
	}
	if s.Security.DigestAlgorithm == "" {
		s.Security.DigestAlgorithm = DigestMethodSHA256
	}
	if s.IdP.CertFingerprintAlgorithm == "" {
		s.IdP.CertFingerprintAlgorithm = "sha1"
	}
	if s.SP.AssertionConsumerServiceBinding == "" {
		s.SP.AssertionConsumerServiceBinding = HTTPPostBinding
	}
	if s.SP.SingleLogoutServiceBinding == "" {
		s.SP.SingleLogoutServiceBinding = HTTPRedirectBinding
	}
	if s.IdP.SingleSignOnServiceBinding == "" {
		s.IdP.SingleSignOnServiceBinding = HTTPRedirectBinding
	}
	if s.IdP.SingleLogoutServiceBinding == "" {
		s.IdP.SingleLogoutServiceBinding = HTTPRedirectBinding
	}

	for _, binding := range []string{
		s.SP.AssertionConsumerServiceBinding,
		s.SP.SingleLogoutServiceBinding,
		s.IdP.SingleSignOnServiceBinding,
		s.IdP.SingleLogoutServiceBinding,
	} {
		if binding != HTTPRedirectBinding && binding != HTTPPostBinding {
			return ErrUnsupportedBinding.errorf("binding %q is not supported", binding)
		}
	}

	if s.SP.EntityID == "" {
		return ErrSettingsInvalid.errorf("sp entity id is required")
	}
	if s.SP.AssertionConsumerServiceURL == "" {
		return ErrSettingsInvalid.errorf("sp assertion consumer service url is required")
	}
	if _, err := url.Parse(s.SP.AssertionConsumerServiceURL); err != nil {
		return ErrSettingsInvalid.wrap(err, "sp assertion consumer service url")
	}
	if s.IdP.EntityID == "" {
		return ErrSettingsInvalid.errorf("idp entity id is required")
	}
	if s.IdP.SingleSignOnServiceURL == "" {
		return ErrSettingsInvalid.errorf("idp single sign-on service url is required")
	}
	if _, err := url.Parse(s.IdP.SingleSignOnServiceURL); err != nil {
		return ErrSettingsInvalid.wrap(err, "idp single sign-on service url")
	}

	if !knownSignatureMethods[s.Security.SignatureAlgorithm] {
		return ErrSettingsInvalid.errorf("unknown signature algorithm %q", s.Security.SignatureAlgorithm)
	}
	if !knownDigestMethods[s.Security.DigestAlgorithm] {
		return ErrSettingsInvalid.errorf("unknown digest algorithm %q", s.Security.DigestAlgorithm)
	}
	if !knownFingerprintAlgorithms[s.IdP.CertFingerprintAlgorithm] {
		return ErrSettingsInvalid.errorf("unknown fingerprint algorithm %q", s.IdP.CertFingerprintAlgorithm)
	}

	needsKey := s.Security.AuthnRequestsSigned || s.Security.LogoutRequestSigned ||
		s.Security.LogoutResponseSigned || s.Security.WantAssertionsEncrypted ||
		s.Security.WantNameIDEncrypted
	if needsKey && s.SP.Key == nil {
		return ErrPrivateKeyNotFound.errorf("sp private key is required by the security settings")
	}
	if needsKey && s.SP.Certificate == nil {
		return ErrCertNotFound.errorf("sp certificate is required by the security settings")
	}

	if s.SP.NewCertificate != nil && s.SP.Certificate == nil {
		return ErrCertNotFound.errorf("a successor certificate requires a current certificate")
	}

	if len(s.IdP.Certificates) == 0 && len(s.IdP.CertFingerprints) == 0 {
		return ErrSettingsInvalid.errorf("either an idp certificate or a fingerprint is required")
	}

	if s.SchemaPath != "" {
		if _, err := os.Stat(s.SchemaPath); err != nil {
			return ErrSettingsInvalid.wrap(err, "schema path")
		}
	}

	return nil
}

// canValidateSignatures reports whether a full certificate is
// available, as opposed to only fingerprints.
func (s *Settings) canValidateSignatures() bool {
	return len(s.IdP.Certificates) > 0
}

// ParseCertificate reads a PEM or bare base64 DER encoded X.509
// certificate.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		der, err := base64.StdEncoding.DecodeString(stripWhitespace(string(data)))
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse certificate")
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse certificate")
		}
		return cert, nil
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse certificate")
	}
	return cert, nil
}

// ParsePrivateKey reads a PEM encoded RSA private key in PKCS#1 or
// PKCS#8 form.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("cannot parse private key: no PEM block")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse private key")
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("cannot parse private key: unsupported type %T", keyAny)
	}
	return key, nil
}
