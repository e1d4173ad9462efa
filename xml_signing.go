package saml

import (
	"crypto/sha1" // #nosec G505
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"strings"
	"unicode"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

// signingContext produces the context used to create enveloped
// signatures for the POST binding.
func (s *Settings) signingContext() (*dsig.SigningContext, error) {
	if s.SP.Key == nil {
		return nil, ErrPrivateKeyNotFound.errorf("signing requires an sp private key")
	}
	if s.SP.Certificate == nil {
		return nil, ErrCertNotFound.errorf("signing requires an sp certificate")
	}

	keyPair := tls.Certificate{
		Certificate: [][]byte{s.SP.Certificate.Raw},
		PrivateKey:  s.SP.Key,
		Leaf:        s.SP.Certificate,
	}
	keyStore := dsig.TLSCertKeyStore(keyPair)

	ctx := dsig.NewDefaultSigningContext(keyStore)
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if err := ctx.SetSignatureMethod(s.Security.SignatureAlgorithm); err != nil {
		return nil, ErrSignatureMethodUnsupported.wrap(err, s.Security.SignatureAlgorithm)
	}
	return ctx, nil
}

// signElement constructs an enveloped signature over el and inserts it
// after the Issuer child, where the SAML schema expects it. The
// enveloped-signature transform excludes the Signature element itself,
// so the insertion does not disturb the signed octets.
func (s *Settings) signElement(el *etree.Element) error {
	ctx, err := s.signingContext()
	if err != nil {
		return err
	}
	sigEl, err := ctx.ConstructSignature(el, true)
	if err != nil {
		return ErrInvalidSignature.wrap(err, "constructing signature")
	}

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
	return nil
}

// findChildren returns the children of parentEl with the given tag in
// the given namespace, resolving prefixes against each element's
// inherited namespace context.
func findChildren(parentEl *etree.Element, childNS, childTag string) ([]*etree.Element, error) {
	var children []*etree.Element
	for _, childEl := range parentEl.ChildElements() {
		if childEl.Tag != childTag {
			continue
		}
		ns, err := elementNamespace(childEl)
		if err != nil {
			return nil, err
		}
		if ns != childNS {
			continue
		}
		children = append(children, childEl)
	}
	return children, nil
}

// findChild returns the first child of parentEl with the given tag in
// the given namespace, or nil when no such child exists.
func findChild(parentEl *etree.Element, childNS, childTag string) (*etree.Element, error) {
	children, err := findChildren(parentEl, childNS, childTag)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return nil, nil
	}
	return children[0], nil
}

// elementNamespace resolves the namespace URI of el's prefix.
func elementNamespace(el *etree.Element) (string, error) {
	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return "", err
	}
	ctx, err = ctx.SubContext(el)
	if err != nil {
		return "", err
	}
	ns, err := ctx.LookupPrefix(el.Space)
	if err != nil {
		return "", err
	}
	return ns, nil
}

// detachElement copies el together with the namespace declarations it
// inherits from its ancestors, so the copy serializes standalone.
func detachElement(el *etree.Element) (*etree.Element, error) {
	nsCtx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return nil, err
	}
	nsCtx, err = nsCtx.SubContext(el)
	if err != nil {
		return nil, err
	}
	return etreeutils.NSDetatch(nsCtx, el)
}

// checkDuplicateIDs walks the document and rejects it if any ID value
// appears on more than one element. Duplicate IDs are the raw material
// of signature wrapping.
func checkDuplicateIDs(el *etree.Element) error {
	seen := map[string]bool{}
	var walk func(el *etree.Element) error
	walk = func(el *etree.Element) error {
		if id := el.SelectAttrValue("ID", ""); id != "" {
			if seen[id] {
				return ErrDuplicatedID.errorf("id %q appears on more than one element", id)
			}
			seen[id] = true
		}
		for _, child := range el.ChildElements() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(el)
}

var allowedTransforms = map[string]bool{
	EnvelopedSignatureAlgorithmID:                  true,
	CanonicalXML10ExclusiveAlgorithmID:             true,
	CanonicalXML10ExclusiveWithCommentsAlgorithmID: true,
}

// checkSignatureConstraints applies the reference and algorithm policy
// to sigEl before any cryptographic work: a single reference that
// points at ownID, only the enveloped-signature and exclusive C14N
// transforms, and no deprecated algorithms when those are refused.
func (s *Settings) checkSignatureConstraints(sigEl *etree.Element, ownID string) error {
	refs := sigEl.FindElements("./SignedInfo/Reference")
	if len(refs) == 0 {
		return ErrNoSignedElement.errorf("signature contains no reference")
	}
	if len(refs) != 1 {
		return ErrDuplicatedSignedElement.errorf("signature contains %d references, want 1", len(refs))
	}
	ref := refs[0]

	uri := ref.SelectAttrValue("URI", "")
	if !strings.HasPrefix(uri, "#") {
		return ErrInvalidSignedElement.errorf("reference uri %q is not a document id", uri)
	}
	if uri[1:] != ownID {
		return ErrInvalidSignedElement.errorf("reference %q does not point at the signed element %q", uri, ownID)
	}

	for _, transform := range ref.FindElements("./Transforms/Transform") {
		alg := transform.SelectAttrValue("Algorithm", "")
		if !allowedTransforms[alg] {
			return ErrInvalidSignature.errorf("transform %q is not allowed", alg)
		}
	}

	if c14n := sigEl.FindElement("./SignedInfo/CanonicalizationMethod"); c14n != nil {
		alg := c14n.SelectAttrValue("Algorithm", "")
		if alg != CanonicalXML10ExclusiveAlgorithmID && alg != CanonicalXML10ExclusiveWithCommentsAlgorithmID {
			return ErrInvalidSignature.errorf("canonicalization method %q is not allowed", alg)
		}
	}

	if method := sigEl.FindElement("./SignedInfo/SignatureMethod"); method != nil {
		alg := method.SelectAttrValue("Algorithm", "")
		if !knownSignatureMethods[alg] {
			return ErrSignatureMethodUnsupported.errorf("signature method %q", alg)
		}
		if s.Security.RejectDeprecatedAlgorithm && deprecatedSignatureMethods[alg] {
			return ErrInvalidSignatureAlgorithm.errorf("signature method %q is deprecated", alg)
		}
	}

	if digest := ref.FindElement("./DigestMethod"); digest != nil {
		alg := digest.SelectAttrValue("Algorithm", "")
		if !knownDigestMethods[alg] {
			return ErrSignatureMethodUnsupported.errorf("digest method %q", alg)
		}
		if s.Security.RejectDeprecatedAlgorithm && deprecatedDigestMethods[alg] {
			return ErrInvalidSignatureAlgorithm.errorf("digest method %q is deprecated", alg)
		}
	}

	return nil
}

// signingCertsForValidation returns the certificates signatures must
// verify against. When no full certificate is configured but a
// fingerprint is pinned, the certificate embedded in the signature is
// used after its fingerprint matches.
func (s *Settings) signingCertsForValidation(sigEl *etree.Element) ([]*x509.Certificate, error) {
	if len(s.IdP.Certificates) > 0 {
		return s.IdP.Certificates, nil
	}
	if len(s.IdP.CertFingerprints) == 0 {
		return nil, ErrCertNotFound.errorf("no idp certificate or fingerprint configured")
	}

	certEl := sigEl.FindElement("./KeyInfo/X509Data/X509Certificate")
	if certEl == nil {
		return nil, ErrCertNotFound.errorf("no idp certificate configured and none embedded in the signature")
	}
	der, err := base64.StdEncoding.DecodeString(stripWhitespace(certEl.Text()))
	if err != nil {
		return nil, ErrCertNotFound.wrap(err, "decoding embedded certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, ErrCertNotFound.wrap(err, "parsing embedded certificate")
	}

	fingerprint := certFingerprint(cert, s.IdP.CertFingerprintAlgorithm)
	for _, pinned := range s.IdP.CertFingerprints {
		if normalizeFingerprint(pinned) == fingerprint {
			return []*x509.Certificate{cert}, nil
		}
	}
	return nil, ErrCertNotFound.errorf("embedded certificate does not match any pinned fingerprint")
}

func certFingerprint(cert *x509.Certificate, alg string) string {
	var h hash.Hash
	switch alg {
	case "sha256":
		h = sha256.New()
	case "sha384":
		h = sha512.New384()
	case "sha512":
		h = sha512.New()
	default:
		h = sha1.New() // #nosec G401
	}
	h.Write(cert.Raw)
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeFingerprint(fingerprint string) string {
	return strings.ToLower(strings.ReplaceAll(fingerprint, ":", ""))
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// validateSignedElement verifies the signature directly under el and
// returns the subtree the signature actually covers. Callers must read
// every security relevant value from the returned element, never from
// el, which may contain unsigned content.
func (s *Settings) validateSignedElement(el, sigEl *etree.Element) (*etree.Element, error) {
	ownID := el.SelectAttrValue("ID", "")
	if ownID == "" {
		return nil, ErrMissingID.errorf("signed element has no ID attribute")
	}
	if err := s.checkSignatureConstraints(sigEl, ownID); err != nil {
		return nil, err
	}

	certs, err := s.signingCertsForValidation(sigEl)
	if err != nil {
		return nil, err
	}
	vc := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: certs})
	vc.IdAttribute = "ID"
	if Clock != nil {
		vc.Clock = Clock
	}

	// Detach el with its inherited namespace declarations so the
	// canonicalization sees the same octets the signer produced.
	detached, err := detachElement(el)
	if err != nil {
		return nil, ErrInvalidSignature.wrap(err, "detaching signed element")
	}

	validated, err := vc.Validate(detached)
	if err != nil {
		return nil, ErrInvalidSignature.wrap(err, "signature validation failed")
	}
	return validated, nil
}
