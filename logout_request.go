package saml

import (
	"bytes"
	"encoding/xml"
	"net/url"

	"github.com/beevik/etree"
	xrv "github.com/mattermost/xml-roundtrip-validator"

	"github.com/markfullmer/saml/xmlenc"
)

// LogoutRequestParams identify the session an SP-initiated
// LogoutRequest terminates.
type LogoutRequestParams struct {
	NameID          string
	NameIDFormat    string
	NameQualifier   string
	SPNameQualifier string
	SessionIndexes  []string
}

// MakeLogoutRequest produces a LogoutRequest addressed to the
// configured identity provider single logout endpoint. The NameID is
// encrypted against the identity provider certificate when
// NameIDEncrypted is set.
func (s *Settings) MakeLogoutRequest(params LogoutRequestParams) (*LogoutRequest, error) {
	if s.IdP.SingleLogoutServiceURL == "" {
		return nil, ErrSingleLogoutNotSupported.errorf("the identity provider does not expose a single logout endpoint")
	}

	req := &LogoutRequest{
		ID:           newMessageID(),
		Version:      "2.0",
		IssueInstant: RelaxedTime(TimeNow()),
		Destination:  s.IdP.SingleLogoutServiceURL,
		Issuer:       &Issuer{Value: s.SP.EntityID},
		SessionIndex: params.SessionIndexes,
	}

	nameID := &NameID{
		Value:           params.NameID,
		Format:          params.NameIDFormat,
		NameQualifier:   params.NameQualifier,
		SPNameQualifier: params.SPNameQualifier,
	}
	if nameID.Value == "" {
		// Without a subject, identify ourselves as the entity.
		nameID.Value = s.SP.EntityID
		nameID.Format = string(EntityNameIDFormat)
	}

	if s.Security.NameIDEncrypted {
		if len(s.IdP.Certificates) == 0 {
			return nil, ErrCertNotFound.errorf("encrypting the NameID requires an idp certificate")
		}
		plainEl := nameID.Element()
		plainEl.CreateAttr("xmlns:saml", assertionNamespace)
		doc := etree.NewDocument()
		doc.SetRoot(plainEl)
		plaintext, err := doc.WriteToBytes()
		if err != nil {
			return nil, err
		}

		enc := xmlenc.OAEP()
		enc.BlockCipher = xmlenc.AES128CBC
		enc.DigestMethod = &xmlenc.SHA1
		encEl, err := enc.Encrypt(s.IdP.Certificates[0], plaintext, nil)
		if err != nil {
			return nil, ErrEncryptionError.wrap(err, "encrypting NameID")
		}
		req.EncryptedID = encEl
	} else {
		req.NameID = nameID
	}

	return req, nil
}

// LogoutRequestRedirectURL encodes req for the Redirect binding. The
// query is signed when LogoutRequestSigned is set.
func (s *Settings) LogoutRequestRedirectURL(req *LogoutRequest, relayState string) (string, error) {
	encoded, err := deflateEncode(req.Element())
	if err != nil {
		return "", err
	}
	query, err := s.redirectQuery(SAMLRequest, encoded, relayState, s.Security.LogoutRequestSigned)
	if err != nil {
		return "", err
	}
	return buildRedirectURL(s.IdP.SingleLogoutServiceURL, query)
}

// LogoutRequestPost encodes req for the POST binding as a
// self-submitting form, with an enveloped signature when
// LogoutRequestSigned is set.
func (s *Settings) LogoutRequestPost(req *LogoutRequest, relayState string) ([]byte, error) {
	el := req.Element()
	if s.Security.LogoutRequestSigned {
		if err := s.signElement(el); err != nil {
			return nil, err
		}
	}
	encoded, err := postEncode(el)
	if err != nil {
		return nil, err
	}
	return renderPostForm(s.IdP.SingleLogoutServiceURL, SAMLRequest, encoded, relayState)
}

// validateLogoutRequest decodes and validates an IdP-initiated
// LogoutRequest received over the Redirect binding.
func (s *Settings) validateLogoutRequest(query url.Values, rawQuery string) (*LogoutRequest, error) {
	raw, err := deflateDecode(query.Get(string(SAMLRequest)))
	if err != nil {
		return nil, err
	}
	if err := xrv.Validate(bytes.NewReader(raw)); err != nil {
		return nil, ErrInvalidXML.wrap(err, "logout request failed roundtrip validation")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot parse logout request")
	}
	root := doc.Root()
	if root == nil || root.Tag != "LogoutRequest" {
		return nil, ErrSchemaViolation.errorf("expected a LogoutRequest document")
	}

	req := &LogoutRequest{}
	if err := xml.Unmarshal(raw, req); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot unmarshal logout request")
	}

	// An encrypted NameID is carried in an EncryptedID element, which
	// the struct does not map.
	encrypted := false
	if encIDEl, err := findChild(root, assertionNamespace, "EncryptedID"); err == nil && encIDEl != nil {
		encrypted = true
		nameID, err := s.decryptNameID(encIDEl)
		if err != nil {
			return nil, err
		}
		req.NameID = nameID
	}

	if s.Strict {
		if req.Version != "2.0" {
			return nil, ErrWrongVersion.errorf("logout request version %q", req.Version)
		}
		if req.ID == "" {
			return nil, ErrMissingID.errorf("logout request has no ID")
		}
		if req.Issuer != nil && req.Issuer.Value != s.IdP.EntityID {
			return nil, ErrInvalidIssuer.errorf("logout request issuer %q, want %q", req.Issuer.Value, s.IdP.EntityID)
		}
		if req.Destination != "" && !destinationMatches(req.Destination, s.SP.SingleLogoutServiceURL) {
			return nil, ErrInvalidDestination.errorf("logout request destination %q, want %q", req.Destination, s.SP.SingleLogoutServiceURL)
		}
		if req.NotOnOrAfter != nil {
			deadline := req.NotOnOrAfter.Time()
			if !TimeNow().Add(-s.Security.ClockSkew).Before(deadline) {
				return nil, ErrResponseExpired.errorf("logout request expired at %s", deadline)
			}
		}
		if req.NameID == nil || req.NameID.Value == "" {
			return nil, ErrNameIDNotFound.errorf("logout request carries no NameID")
		}
		if s.Security.WantNameIDEncrypted && !encrypted {
			return nil, ErrNameIDNotEncrypted.errorf("logout request NameID is not encrypted")
		}
	}

	if s.Security.WantMessagesSigned || query.Get(string(Signature)) != "" {
		if err := s.validateQuerySignature(query, rawQuery); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// decryptNameID decrypts the EncryptedData inside an EncryptedID
// element using the service provider private key.
func (s *Settings) decryptNameID(encIDEl *etree.Element) (*NameID, error) {
	if s.SP.Key == nil {
		return nil, ErrPrivateKeyNotFound.errorf("decrypting a NameID requires the sp private key")
	}
	encDataEl, err := findChild(encIDEl, encryptionNamespace, "EncryptedData")
	if err != nil {
		return nil, ErrDecryptionError.wrap(err, "locating EncryptedData")
	}
	if encDataEl == nil {
		return nil, ErrDecryptionError.errorf("EncryptedID carries no EncryptedData")
	}
	if s.Security.RejectDeprecatedAlgorithm {
		if err := rejectDeprecatedKeyTransport(encDataEl); err != nil {
			return nil, err
		}
	}
	plaintext, err := xmlenc.Decrypt(s.SP.Key, encDataEl)
	if err != nil {
		return nil, ErrDecryptionError.wrap(err, "decrypting NameID")
	}
	nameID := &NameID{}
	if err := xml.Unmarshal(plaintext, nameID); err != nil {
		return nil, ErrDecryptionError.wrap(err, "parsing decrypted NameID")
	}
	return nameID, nil
}

// rejectDeprecatedKeyTransport refuses RSA PKCS#1 v1.5 key transport
// inside an EncryptedData or EncryptedKey subtree.
func rejectDeprecatedKeyTransport(encEl *etree.Element) error {
	for _, methodEl := range encEl.FindElements(".//EncryptionMethod") {
		alg := methodEl.SelectAttrValue("Algorithm", "")
		if deprecatedKeyTransportMethods[alg] {
			return ErrInvalidSignatureAlgorithm.errorf("key transport %q is deprecated", alg)
		}
	}
	return nil
}
