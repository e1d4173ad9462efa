package saml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAppliesDefaults(t *testing.T) {
	s := testSettings(t)
	assert.Equal(t, SignatureMethodRSASHA256, s.Security.SignatureAlgorithm)
	assert.Equal(t, DigestMethodSHA256, s.Security.DigestAlgorithm)
	assert.Equal(t, "sha1", s.IdP.CertFingerprintAlgorithm)
	assert.Equal(t, HTTPPostBinding, s.SP.AssertionConsumerServiceBinding)
	assert.Equal(t, HTTPRedirectBinding, s.SP.SingleLogoutServiceBinding)
	assert.Equal(t, HTTPRedirectBinding, s.IdP.SingleSignOnServiceBinding)
	assert.Equal(t, HTTPRedirectBinding, s.IdP.SingleLogoutServiceBinding)
}

func TestValidateRejectsIncompleteSettings(t *testing.T) {
	for name, corrupt := range map[string]func(*Settings){
		"no sp entity id":  func(s *Settings) { s.SP.EntityID = "" },
		"no acs url":       func(s *Settings) { s.SP.AssertionConsumerServiceURL = "" },
		"no idp entity id": func(s *Settings) { s.IdP.EntityID = "" },
		"no sso url":       func(s *Settings) { s.IdP.SingleSignOnServiceURL = "" },
		"no idp certificate or fingerprint": func(s *Settings) {
			s.IdP.Certificates = nil
			s.IdP.CertFingerprints = nil
		},
		"unknown signature algorithm": func(s *Settings) {
			s.Security.SignatureAlgorithm = "http://www.w3.org/2000/09/xmldsig#dsa-sha1"
		},
		"unknown digest algorithm": func(s *Settings) {
			s.Security.DigestAlgorithm = "md5"
		},
		"unknown fingerprint algorithm": func(s *Settings) {
			s.IdP.CertFingerprintAlgorithm = "md5"
		},
	} {
		t.Run(name, func(t *testing.T) {
			s := testSettings(t)
			corrupt(s)
			err := s.Validate()
			require.Error(t, err)
			assert.NotEmpty(t, KindOf(err))
		})
	}
}

func TestValidateRejectsUnsupportedBinding(t *testing.T) {
	s := testSettings(t)
	s.IdP.SingleSignOnServiceBinding = "urn:oasis:names:tc:SAML:2.0:bindings:SOAP"
	err := s.Validate()
	assert.Equal(t, ErrUnsupportedBinding, KindOf(err))
}

func TestValidateSchemaPath(t *testing.T) {
	s := testSettings(t)
	s.SchemaPath = "testdata"
	require.NoError(t, s.Validate())

	s = testSettings(t)
	s.SchemaPath = "testdata/no-such-dir"
	err := s.Validate()
	assert.Equal(t, ErrSettingsInvalid, KindOf(err))
}

func TestValidateSuccessorCertificateNeedsCurrent(t *testing.T) {
	s := testSettings(t)
	s.SP.NewCertificate = testSPCertificate(t)
	require.NoError(t, s.Validate())

	s.SP.Certificate = nil
	err := s.Validate()
	assert.Equal(t, ErrCertNotFound, KindOf(err))
}

func TestValidateRequiresKeyMaterialForSigning(t *testing.T) {
	s := testSettings(t)
	s.Security.AuthnRequestsSigned = true
	s.SP.Key = nil
	err := s.Validate()
	assert.Equal(t, ErrPrivateKeyNotFound, KindOf(err))

	s = testSettings(t)
	s.Security.WantAssertionsEncrypted = true
	s.SP.Certificate = nil
	err = s.Validate()
	assert.Equal(t, ErrCertNotFound, KindOf(err))
}

func TestValidateAcceptsFingerprintOnly(t *testing.T) {
	s := testSettings(t)
	s.IdP.Certificates = nil
	s.IdP.CertFingerprints = []string{"ab:cd:ef"}
	require.NoError(t, s.Validate())
	assert.False(t, s.canValidateSignatures())
}

func TestParseCertificate(t *testing.T) {
	pemData := mustReadFile(t, "testdata/sp_cert.pem")
	cert, err := ParseCertificate(pemData)
	require.NoError(t, err)
	assert.NotNil(t, cert)

	// the same certificate as bare base64 DER, the form metadata carries
	var bare string
	for _, line := range strings.Split(string(pemData), "\n") {
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		bare += line + "\n"
	}
	cert2, err := ParseCertificate([]byte(bare))
	require.NoError(t, err)
	assert.Equal(t, cert.SerialNumber, cert2.SerialNumber)

	_, err = ParseCertificate([]byte("not a certificate"))
	require.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey(mustReadFile(t, "testdata/sp_key.pem"))
	require.NoError(t, err)
	assert.NotNil(t, key)

	_, err = ParsePrivateKey([]byte("not a key"))
	require.Error(t, err)
}
