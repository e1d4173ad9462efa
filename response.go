package saml

import (
	"bytes"
	"encoding/xml"
	"time"

	"github.com/beevik/etree"
	xrv "github.com/mattermost/xml-roundtrip-validator"

	"github.com/markfullmer/saml/xmlenc"
)

// AssertionInfo is what a validated Response asserts about the
// authenticated subject. Every field is extracted exclusively from the
// signature-covered subtree.
type AssertionInfo struct {
	NameID *NameID

	// Attributes maps attribute names to their values.
	// FriendlyAttributes is the same data keyed by FriendlyName, for
	// the attributes that carry one.
	Attributes         map[string][]string
	FriendlyAttributes map[string][]string

	SessionIndex        string
	SessionNotOnOrAfter *time.Time

	ResponseID   string
	AssertionID  string
	InResponseTo string

	// AssertionNotOnOrAfter is the earliest NotOnOrAfter among the
	// bearer subject confirmations that validated, a replay-cache
	// eviction hint.
	AssertionNotOnOrAfter *time.Time

	// ResponseXML is the validated response document, with the
	// decrypted assertion substituted for an EncryptedAssertion. For
	// diagnostics.
	ResponseXML string
}

// ValidateResponse decodes a POST binding SAMLResponse value, verifies
// it and returns the asserted subject. requestID, when not empty, is
// the ID of the AuthnRequest this response must answer.
//
// Signature wrapping is defeated by construction: after signature
// validation all assertion data is re-read from the subtree the
// signature actually covers, and documents reusing an ID are rejected
// before any signature work.
func (s *Settings) ValidateResponse(encodedResponse, requestID string) (*AssertionInfo, error) {
	raw, err := postDecode(encodedResponse)
	if err != nil {
		return nil, err
	}
	if err := xrv.Validate(bytes.NewReader(raw)); err != nil {
		return nil, ErrInvalidXML.wrap(err, "response failed roundtrip validation")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot parse response")
	}
	root := doc.Root()
	if root == nil || root.Tag != "Response" {
		return nil, ErrSchemaViolation.errorf("expected a Response document")
	}
	if ns, err := elementNamespace(root); err != nil || ns != protocolNamespace {
		return nil, ErrSchemaViolation.errorf("response root is not in the SAML protocol namespace")
	}
	if s.Strict && s.Security.WantXMLValidation {
		if err := validateResponseStructure(root); err != nil {
			return nil, err
		}
	}

	if err := checkDuplicateIDs(root); err != nil {
		return nil, err
	}

	resp := &Response{}
	if err := xml.Unmarshal(raw, resp); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot unmarshal response")
	}
	if resp.ID == "" {
		return nil, ErrMissingID.errorf("response has no ID")
	}
	if resp.Version != "2.0" {
		return nil, ErrWrongVersion.errorf("response version %q", resp.Version)
	}

	if resp.Status.StatusCode.Value == "" {
		return nil, ErrStatusCodeNotFound.errorf("response carries no status code")
	}
	if resp.Status.StatusCode.Value != StatusSuccess {
		detail := resp.Status.StatusCode.Value
		if nested := resp.Status.StatusCode.StatusCode; nested != nil {
			detail += " -> " + nested.Value
		}
		if resp.Status.StatusMessage != nil {
			detail += ": " + resp.Status.StatusMessage.Value
		}
		return nil, ErrResponseStatusError.errorf("%s", detail)
	}

	if s.Strict {
		if resp.Destination == "" {
			return nil, ErrInvalidDestination.errorf("the response has an empty destination")
		}
		if !destinationMatches(resp.Destination, s.SP.AssertionConsumerServiceURL) {
			return nil, ErrInvalidDestination.errorf("response destination %q, want %q", resp.Destination, s.SP.AssertionConsumerServiceURL)
		}
		if requestID == "" && resp.InResponseTo != "" && s.Security.RejectUnsolicitedResponsesWithInResponseTo {
			return nil, ErrInvalidInResponseTo.errorf("unsolicited response carries InResponseTo %q", resp.InResponseTo)
		}
		if requestID != "" && resp.InResponseTo != requestID {
			return nil, ErrInvalidInResponseTo.errorf("response answers %q, want %q", resp.InResponseTo, requestID)
		}
		if resp.Issuer != nil && resp.Issuer.Value != s.IdP.EntityID {
			return nil, ErrInvalidIssuer.errorf("response issuer %q, want %q", resp.Issuer.Value, s.IdP.EntityID)
		}
	}

	// Establish the trusted envelope before touching the assertion. A
	// signature over the response covers whatever the assertion looked
	// like when the identity provider signed it, including its
	// encrypted form.
	responseSigEl, err := findChild(root, signatureNamespace, "Signature")
	if err != nil {
		return nil, ErrInvalidSignature.wrap(err, "locating response signature")
	}
	if s.Security.WantMessagesSigned && responseSigEl == nil {
		return nil, ErrNoSignedMessage.errorf("the response is not signed")
	}

	workingRoot := root
	trusted := false
	if responseSigEl != nil {
		validated, err := s.validateSignedElement(root, responseSigEl)
		if err != nil {
			return nil, err
		}
		workingRoot = validated
		trusted = true
	}

	assertionEl, encrypted, err := s.extractAssertion(workingRoot)
	if err != nil {
		return nil, err
	}
	if s.Security.WantAssertionsEncrypted && !encrypted {
		return nil, ErrAssertionNotEncrypted.errorf("the assertion is not encrypted")
	}

	assertionSigEl, err := findChild(assertionEl, signatureNamespace, "Signature")
	if err != nil {
		return nil, ErrInvalidSignature.wrap(err, "locating assertion signature")
	}
	if s.Security.WantAssertionsSigned && assertionSigEl == nil {
		return nil, ErrNoSignedAssertion.errorf("the assertion is not signed")
	}
	if assertionSigEl != nil {
		validated, err := s.validateSignedElement(assertionEl, assertionSigEl)
		if err != nil {
			return nil, err
		}
		assertionEl = validated
		trusted = true
	}
	if !trusted {
		return nil, ErrNoSignature.errorf("neither the response nor the assertion is signed")
	}

	info, err := s.extractAssertionInfo(assertionEl, resp, requestID)
	if err != nil {
		return nil, err
	}
	info.ResponseXML = string(raw)
	if encrypted {
		if encEl, err := findChild(root, assertionNamespace, "EncryptedAssertion"); err == nil && encEl != nil {
			if decrypted, err := detachElement(assertionEl); err == nil {
				root.InsertChild(encEl, decrypted)
				root.RemoveChild(encEl)
				info.ResponseXML = elementString(root)
			}
		}
	}
	return info, nil
}

// extractAssertion locates the single assertion inside the trusted
// envelope, decrypting it when needed.
func (s *Settings) extractAssertion(workingRoot *etree.Element) (*etree.Element, bool, error) {
	plain, err := findChildren(workingRoot, assertionNamespace, "Assertion")
	if err != nil {
		return nil, false, ErrInvalidXML.wrap(err, "locating assertion")
	}
	enc, err := findChildren(workingRoot, assertionNamespace, "EncryptedAssertion")
	if err != nil {
		return nil, false, ErrInvalidXML.wrap(err, "locating encrypted assertion")
	}

	switch n := len(plain) + len(enc); {
	case n == 0:
		return nil, false, ErrNoAssertion.errorf("the response carries no assertion")
	case n > 1:
		return nil, false, ErrSchemaViolation.errorf("the response carries %d assertions, want 1", n)
	}

	if len(plain) == 1 {
		return plain[0], false, nil
	}

	if s.SP.Key == nil {
		return nil, false, ErrEncryptedAssertionNotAllowed.errorf("cannot decrypt the assertion: no sp private key")
	}
	encDataEl, err := findChild(enc[0], encryptionNamespace, "EncryptedData")
	if err != nil || encDataEl == nil {
		return nil, false, ErrDecryptionError.errorf("EncryptedAssertion carries no EncryptedData")
	}
	if s.Security.RejectDeprecatedAlgorithm {
		if err := rejectDeprecatedKeyTransport(encDataEl); err != nil {
			return nil, false, err
		}
	}
	plaintext, err := xmlenc.Decrypt(s.SP.Key, encDataEl)
	if err != nil {
		return nil, false, ErrDecryptionError.wrap(err, "decrypting assertion")
	}
	if err := xrv.Validate(bytes.NewReader(plaintext)); err != nil {
		return nil, false, ErrInvalidXML.wrap(err, "decrypted assertion failed roundtrip validation")
	}
	assertionDoc := etree.NewDocument()
	if err := assertionDoc.ReadFromBytes(plaintext); err != nil {
		return nil, false, ErrInvalidXML.wrap(err, "cannot parse decrypted assertion")
	}
	assertionEl := assertionDoc.Root()
	if assertionEl == nil || assertionEl.Tag != "Assertion" {
		return nil, false, ErrSchemaViolation.errorf("decrypted content is not an Assertion")
	}
	if err := checkDuplicateIDs(assertionEl); err != nil {
		return nil, false, err
	}
	if assertionEl.SelectAttrValue("ID", "") == workingRoot.SelectAttrValue("ID", "") {
		return nil, false, ErrDuplicatedID.errorf("decrypted assertion reuses the response ID")
	}
	return assertionEl, true, nil
}

// extractAssertionInfo applies the semantic checks to the trusted
// assertion subtree and builds the result.
func (s *Settings) extractAssertionInfo(assertionEl *etree.Element, resp *Response, requestID string) (*AssertionInfo, error) {
	detached, err := detachElement(assertionEl)
	if err != nil {
		return nil, ErrInvalidXML.wrap(err, "detaching assertion")
	}
	assertionDoc := etree.NewDocument()
	assertionDoc.SetRoot(detached)
	assertionRaw, err := assertionDoc.WriteToBytes()
	if err != nil {
		return nil, ErrInvalidXML.wrap(err, "serializing assertion")
	}
	assertion := &Assertion{}
	if err := xml.Unmarshal(assertionRaw, assertion); err != nil {
		return nil, ErrInvalidXML.wrap(err, "cannot unmarshal assertion")
	}

	if assertion.Version != "2.0" {
		return nil, ErrWrongVersion.errorf("assertion version %q", assertion.Version)
	}
	if assertion.ID == "" {
		return nil, ErrMissingID.errorf("assertion has no ID")
	}
	if s.Strict && assertion.Issuer != nil && assertion.Issuer.Value != s.IdP.EntityID {
		return nil, ErrInvalidIssuer.errorf("assertion issuer %q, want %q", assertion.Issuer.Value, s.IdP.EntityID)
	}

	now := TimeNow()
	skew := s.Security.ClockSkew
	if c := assertion.Conditions; c != nil {
		if c.NotBefore != nil && now.Add(skew).Before(c.NotBefore.Time()) {
			return nil, ErrAssertionTooEarly.errorf("assertion is not valid before %s", c.NotBefore)
		}
		if c.NotOnOrAfter != nil && !now.Add(-skew).Before(c.NotOnOrAfter.Time()) {
			return nil, ErrAssertionExpired.errorf("assertion expired at %s", c.NotOnOrAfter)
		}
		if s.Strict {
			if err := checkAudience(c, s.SP.EntityID); err != nil {
				return nil, err
			}
		}
	}

	info := &AssertionInfo{
		ResponseID:   resp.ID,
		AssertionID:  assertion.ID,
		InResponseTo: resp.InResponseTo,
	}

	if s.Strict {
		notOnOrAfter, err := checkSubjectConfirmations(assertion, resp.InResponseTo, s.SP.AssertionConsumerServiceURL, now, skew)
		if err != nil {
			return nil, err
		}
		info.AssertionNotOnOrAfter = notOnOrAfter
	}

	nameID, err := s.extractNameID(detached, assertion)
	if err != nil {
		return nil, err
	}
	if s.Strict && nameID.SPNameQualifier != "" && nameID.SPNameQualifier != s.SP.EntityID {
		return nil, ErrSPNameQualifierMismatch.errorf("NameID SPNameQualifier %q, want %q", nameID.SPNameQualifier, s.SP.EntityID)
	}
	info.NameID = nameID

	if len(assertion.AuthnStatements) != 1 {
		return nil, ErrNoAuthnStatement.errorf("the assertion carries %d AuthnStatement elements, want 1", len(assertion.AuthnStatements))
	}
	authn := assertion.AuthnStatements[0]
	info.SessionIndex = authn.SessionIndex
	if authn.SessionNotOnOrAfter != nil {
		t := authn.SessionNotOnOrAfter.Time()
		if !now.Add(-skew).Before(t) {
			return nil, ErrSessionExpired.errorf("the session expired at %s", t)
		}
		info.SessionNotOnOrAfter = &t
	}

	attributes, friendly, err := extractAttributes(assertion, s.Strict)
	if err != nil {
		return nil, err
	}
	info.Attributes = attributes
	info.FriendlyAttributes = friendly

	return info, nil
}

// extractNameID reads the subject NameID, decrypting an EncryptedID
// when one is present.
func (s *Settings) extractNameID(assertionEl *etree.Element, assertion *Assertion) (*NameID, error) {
	subjectEl, err := findChild(assertionEl, assertionNamespace, "Subject")
	if err != nil {
		return nil, ErrInvalidXML.wrap(err, "locating subject")
	}
	if subjectEl == nil {
		return nil, ErrNameIDNotFound.errorf("the assertion carries no subject")
	}

	encrypted := false
	var nameID *NameID
	if encIDEl, err := findChild(subjectEl, assertionNamespace, "EncryptedID"); err == nil && encIDEl != nil {
		encrypted = true
		nameID, err = s.decryptNameID(encIDEl)
		if err != nil {
			return nil, err
		}
	} else if assertion.Subject != nil {
		nameID = assertion.Subject.NameID
	}

	if s.Security.WantNameIDEncrypted && !encrypted {
		return nil, ErrNameIDNotEncrypted.errorf("the NameID is not encrypted")
	}
	if nameID == nil {
		return nil, ErrNameIDNotFound.errorf("the subject carries no NameID")
	}
	if nameID.Value == "" {
		return nil, ErrEmptyNameID.errorf("the NameID is empty")
	}
	return nameID, nil
}

// checkAudience requires our entity ID among the allowed audiences
// when the assertion restricts them.
func checkAudience(c *Conditions, entityID string) error {
	if len(c.AudienceRestrictions) == 0 {
		return nil
	}
	var seen []string
	for _, restriction := range c.AudienceRestrictions {
		for _, audience := range restriction.Audiences {
			if audience.Value == entityID {
				return nil
			}
			seen = append(seen, audience.Value)
		}
	}
	return ErrInvalidAudience.errorf("%q is not an allowed audience: %v", entityID, seen)
}

// checkSubjectConfirmations requires at least one bearer subject
// confirmation addressed to us and still valid. It returns the
// earliest deadline among the confirmations that validated.
func checkSubjectConfirmations(assertion *Assertion, inResponseTo, acsURL string, now time.Time, skew time.Duration) (*time.Time, error) {
	if assertion.Subject == nil {
		return nil, ErrWrongSubjectConfirmation.errorf("the assertion carries no subject")
	}
	var earliest *time.Time
	for _, sc := range assertion.Subject.SubjectConfirmations {
		if sc.Method != SubjectConfirmationMethodBearer {
			continue
		}
		scd := sc.SubjectConfirmationData
		if scd == nil {
			continue
		}
		if !destinationMatches(scd.Recipient, acsURL) {
			continue
		}
		if scd.InResponseTo != "" && scd.InResponseTo != inResponseTo {
			continue
		}
		if scd.NotBefore != nil && now.Add(skew).Before(scd.NotBefore.Time()) {
			continue
		}
		if scd.NotOnOrAfter == nil {
			continue
		}
		deadline := scd.NotOnOrAfter.Time()
		if !now.Add(-skew).Before(deadline) {
			continue
		}
		if earliest == nil || deadline.Before(*earliest) {
			earliest = &deadline
		}
	}
	if earliest == nil {
		return nil, ErrWrongSubjectConfirmation.errorf("no valid bearer SubjectConfirmation found")
	}
	return earliest, nil
}

// extractAttributes flattens the attribute statements into maps keyed
// by Name and by FriendlyName. In strict mode a Name or FriendlyName
// appearing twice is rejected, so a caller looking up an attribute
// cannot be misdirected; otherwise duplicate Names concatenate their
// values and a duplicate FriendlyName keeps the last one.
func extractAttributes(assertion *Assertion, strict bool) (map[string][]string, map[string][]string, error) {
	attributes := map[string][]string{}
	friendly := map[string][]string{}
	for _, statement := range assertion.AttributeStatements {
		for _, attr := range statement.Attributes {
			if _, ok := attributes[attr.Name]; ok && strict {
				return nil, nil, ErrDuplicatedAttributeName.errorf("attribute %q appears more than once", attr.Name)
			}
			var values []string
			for _, value := range attr.Values {
				if value.NameID != nil {
					values = append(values, value.NameID.Value)
					continue
				}
				values = append(values, value.Value)
			}
			attributes[attr.Name] = append(attributes[attr.Name], values...)
			if attr.FriendlyName != "" {
				if _, ok := friendly[attr.FriendlyName]; ok && strict {
					return nil, nil, ErrDuplicatedAttributeName.errorf("attribute friendly name %q appears more than once", attr.FriendlyName)
				}
				friendly[attr.FriendlyName] = values
			}
		}
	}
	return attributes, friendly, nil
}

// validateResponseStructure is the structural pass enabled by
// WantXMLValidation: the shape checks a schema validator would apply
// to the envelope.
func validateResponseStructure(root *etree.Element) error {
	if root.SelectAttr("ID") == nil {
		return ErrSchemaViolation.errorf("response has no ID attribute")
	}
	if root.SelectAttr("Version") == nil {
		return ErrSchemaViolation.errorf("response has no Version attribute")
	}
	if root.SelectAttr("IssueInstant") == nil {
		return ErrSchemaViolation.errorf("response has no IssueInstant attribute")
	}
	var issueInstant RelaxedTime
	if err := issueInstant.UnmarshalText([]byte(root.SelectAttrValue("IssueInstant", ""))); err != nil {
		return ErrSchemaViolation.wrap(err, "response IssueInstant is not a timestamp")
	}
	statusEl, err := findChild(root, protocolNamespace, "Status")
	if err != nil || statusEl == nil {
		return ErrSchemaViolation.errorf("response has no Status element")
	}
	return nil
}
